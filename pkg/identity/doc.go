// Package identity binds accounts to federation identities.
//
// The Manager coordinates the external provider with the credential store:
// identities are created lazily at first issuance, shared by every
// registration of a username, and revoked only when the last registration
// is gone. LocalProvider is a self-contained provider for deployments
// without an external identity pool.
package identity
