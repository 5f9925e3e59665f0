package identity

import (
	"context"
	"errors"
	"time"
)

// Common errors for federation provider operations
var (
	ErrIdentityNotFound = errors.New("identity not found")
)

// Identity is an opaque external identity with a freshly minted session token
type Identity struct {
	ID           string
	SessionToken string
	ExpiresAt    time.Time
}

// FederationProvider abstracts the external identity pool. Implementations
// must be idempotent on GetOrCreateIdentity for the same login key.
type FederationProvider interface {
	// GetOrCreateIdentity returns the identity bound to the login key,
	// creating one if absent, along with a bearer session token
	GetOrCreateIdentity(ctx context.Context, loginKey string) (Identity, error)

	// LookupIdentity resolves the identity id bound to the login key,
	// failing with ErrIdentityNotFound if the provider has no record
	LookupIdentity(ctx context.Context, loginKey string) (string, error)

	// RevokeIdentity deletes the identity from the pool
	RevokeIdentity(ctx context.Context, identityID string) error
}
