// Package notification delivers transactional notices (email verification,
// password reset) through pluggable notifiers with registered templates.
package notification
