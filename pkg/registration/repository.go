package registration

import (
	"context"
	"errors"
	"time"
)

// Common errors for registration repositories
var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrDuplicateKey         = errors.New("registration already exists")
	ErrTokenMismatch        = errors.New("stored token does not match")
	ErrAmbiguousAccount     = errors.New("multiple registrations match, service required")
)

// RegistrationRepository defines typed access to per-(service, username)
// registration records.
//
// Create is a conditional put: it fails with ErrDuplicateKey if the key
// already exists. The Consume* operations are conditional updates: they
// succeed only while the stored token still equals the supplied value, so a
// token can be consumed exactly once under concurrent requests.
type RegistrationRepository interface {
	// GetByKey returns the registration for the composite key
	GetByKey(ctx context.Context, key Key) (Registration, error)

	// Create inserts a new registration, failing with ErrDuplicateKey if a
	// registration with the same key exists
	Create(ctx context.Context, reg Registration) error

	// QueryByUsername returns all registrations for a username across services
	QueryByUsername(ctx context.Context, username string) ([]Registration, error)

	// QueryByEmail returns all registrations for an email address
	QueryByEmail(ctx context.Context, email string) ([]Registration, error)

	// Delete removes the registration for the composite key
	Delete(ctx context.Context, key Key) error

	// SetToken stores a single-use token of the given kind, clearing any
	// token of the other kind
	SetToken(ctx context.Context, key Key, kind TokenKind, token string, expiresAt time.Time) error

	// ConsumeVerificationToken atomically clears the verification token and
	// transitions the registration to active, failing with ErrTokenMismatch
	// if the stored token no longer equals token
	ConsumeVerificationToken(ctx context.Context, key Key, token string) (Registration, error)

	// ConsumePasswordResetToken atomically clears the password reset token
	// and replaces the password hash, failing with ErrTokenMismatch if the
	// stored token no longer equals token
	ConsumePasswordResetToken(ctx context.Context, key Key, token string, newHash []byte) (Registration, error)

	// UpdateIdentityID records the federation identity bound to the registration
	UpdateIdentityID(ctx context.Context, key Key, identityID string) error
}
