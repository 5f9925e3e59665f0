package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loginn-io/loginn/pkg/registration"
)

// Common errors for token operations
var (
	ErrTokenNotFound    = errors.New("no matching token found")
	ErrTokenExpired     = errors.New("token has expired")
	ErrAmbiguousAccount = errors.New("token matches more than one registration")
)

// Default single-use token lifetimes
const (
	DefaultVerificationExpiry  = 24 * time.Hour
	DefaultPasswordResetExpiry = 1 * time.Hour
)

// Engine generates, binds, and consumes single-use tokens stored on
// registrations. A token is valid for exactly one successful consumption;
// consuming clears it from the record through a conditional store update.
type Engine struct {
	repo                registration.RegistrationRepository
	verificationExpiry  time.Duration
	passwordResetExpiry time.Duration
}

// EngineOption defines configuration options for the token engine
type EngineOption func(*Engine)

// WithVerificationExpiry sets the verification token lifetime
func WithVerificationExpiry(expiry time.Duration) EngineOption {
	return func(e *Engine) {
		e.verificationExpiry = expiry
	}
}

// WithPasswordResetExpiry sets the password reset token lifetime
func WithPasswordResetExpiry(expiry time.Duration) EngineOption {
	return func(e *Engine) {
		e.passwordResetExpiry = expiry
	}
}

// NewEngine creates a new token engine
func NewEngine(repo registration.RegistrationRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:                repo,
		verificationExpiry:  DefaultVerificationExpiry,
		passwordResetExpiry: DefaultPasswordResetExpiry,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Issue generates a cryptographically secure random URL-safe token
func Issue() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// StampVerification issues a verification token and sets it on the
// registration value without persisting, for flows that persist the whole
// record in one conditional put. Returns the raw token.
func (e *Engine) StampVerification(reg *registration.Registration) (string, error) {
	token, err := Issue()
	if err != nil {
		return "", err
	}
	reg.VerificationToken = token
	reg.PasswordResetToken = ""
	reg.TokenExpiresAt = time.Now().UTC().Add(e.verificationExpiry)
	return token, nil
}

// Bind issues a token of the given kind and stores it on the registration,
// overwriting any prior token. Returns the raw token for embedding in a link.
func (e *Engine) Bind(ctx context.Context, key registration.Key, kind registration.TokenKind) (string, error) {
	token, err := Issue()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().UTC().Add(e.expiryFor(kind))
	if err := e.repo.SetToken(ctx, key, kind, token, expiresAt); err != nil {
		slog.Error("Failed to bind token", "service", key.Service, "username", key.Username, "kind", kind, "err", err)
		return "", err
	}
	return token, nil
}

// ConsumeVerification finds the registration whose verification token equals
// the supplied value among the username's registrations, clears it, and
// transitions the registration to active. The clear and the transition run as
// one conditional update; a replay fails with ErrTokenNotFound.
func (e *Engine) ConsumeVerification(ctx context.Context, username, token string) (registration.Registration, error) {
	match, err := e.findByToken(ctx, username, registration.TokenKindVerification, token)
	if err != nil {
		return registration.Registration{}, err
	}

	reg, err := e.repo.ConsumeVerificationToken(ctx, match.Key(), token)
	if err != nil {
		if errors.Is(err, registration.ErrTokenMismatch) || errors.Is(err, registration.ErrRegistrationNotFound) {
			return registration.Registration{}, ErrTokenNotFound
		}
		return registration.Registration{}, err
	}
	return reg, nil
}

// ConsumePasswordReset finds the registration whose reset token equals the
// supplied value, clears it, and replaces the password hash in the same
// conditional update.
func (e *Engine) ConsumePasswordReset(ctx context.Context, username, token string, newHash []byte) (registration.Registration, error) {
	match, err := e.findByToken(ctx, username, registration.TokenKindPasswordReset, token)
	if err != nil {
		return registration.Registration{}, err
	}

	reg, err := e.repo.ConsumePasswordResetToken(ctx, match.Key(), token, newHash)
	if err != nil {
		if errors.Is(err, registration.ErrTokenMismatch) || errors.Is(err, registration.ErrRegistrationNotFound) {
			return registration.Registration{}, ErrTokenNotFound
		}
		return registration.Registration{}, err
	}
	return reg, nil
}

// findByToken scans the username's registrations for one carrying the token.
// The token value itself disambiguates the service, which is how the change
// password flow derives the service without the caller supplying it.
func (e *Engine) findByToken(ctx context.Context, username string, kind registration.TokenKind, token string) (registration.Registration, error) {
	if token == "" {
		return registration.Registration{}, ErrTokenNotFound
	}

	regs, err := e.repo.QueryByUsername(ctx, username)
	if err != nil {
		return registration.Registration{}, fmt.Errorf("failed to query registrations: %w", err)
	}

	var matches []registration.Registration
	for _, reg := range regs {
		if reg.Token(kind) == token {
			matches = append(matches, reg)
		}
	}
	if len(matches) == 0 {
		return registration.Registration{}, ErrTokenNotFound
	}
	if len(matches) > 1 {
		return registration.Registration{}, ErrAmbiguousAccount
	}

	match := matches[0]
	if !match.TokenExpiresAt.IsZero() && time.Now().UTC().After(match.TokenExpiresAt) {
		slog.Warn("Token expired", "username", username, "kind", kind, "expires_at", match.TokenExpiresAt)
		return registration.Registration{}, ErrTokenExpired
	}
	return match, nil
}

func (e *Engine) expiryFor(kind registration.TokenKind) time.Duration {
	if kind == registration.TokenKindPasswordReset {
		return e.passwordResetExpiry
	}
	return e.verificationExpiry
}
