package registration

import (
	"time"
)

// State represents the lifecycle state of a registration
type State string

const (
	// StatePendingVerification is the state of a registration whose email
	// ownership has not been proven yet
	StatePendingVerification State = "pending_verification"
	// StateActive is the state of a registration after its verification
	// token has been consumed
	StateActive State = "active"
)

// TokenKind identifies which single-use token field an operation targets
type TokenKind string

const (
	TokenKindVerification  TokenKind = "verification"
	TokenKindPasswordReset TokenKind = "password_reset"
)

// Key is the composite primary key of a registration
type Key struct {
	Service  string
	Username string
}

// Registration is one (service, username) credential record.
//
// At most one of VerificationToken and PasswordResetToken is non-empty at a
// time; TokenExpiresAt applies to whichever token is live.
type Registration struct {
	Service            string
	Username           string
	Email              string
	PasswordHash       []byte
	State              State
	VerificationToken  string
	PasswordResetToken string
	TokenExpiresAt     time.Time
	IdentityID         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Key returns the composite key of the registration
func (r Registration) Key() Key {
	return Key{Service: r.Service, Username: r.Username}
}

// Token returns the stored token of the given kind
func (r Registration) Token(kind TokenKind) string {
	switch kind {
	case TokenKindVerification:
		return r.VerificationToken
	case TokenKindPasswordReset:
		return r.PasswordResetToken
	}
	return ""
}
