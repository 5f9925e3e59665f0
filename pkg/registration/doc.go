// Package registration holds the credential store model and repositories.
//
// A Registration is one (service, username) credential record; the set of
// registrations sharing a username forms an account. Repositories expose
// conditional writes (put-if-absent creation, compare-and-swap token
// consumption) so lifecycle transitions stay atomic under concurrency.
package registration
