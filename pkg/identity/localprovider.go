package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultSessionTokenExpiry matches the upstream pool's 15 minute bearer
// token lifetime
const DefaultSessionTokenExpiry = 15 * time.Minute

// LocalProvider implements FederationProvider as a self-hosted developer
// identity pool: identity ids are random UUIDs bound to login keys, and
// session tokens are HS256 JWTs with the identity id as subject.
type LocalProvider struct {
	mu         sync.Mutex
	identities map[string]string // loginKey -> identityID

	Secret   string
	Issuer   string
	Audience string

	SessionTokenExpiry time.Duration
}

// LocalProviderOption is a function that configures a LocalProvider
type LocalProviderOption func(*LocalProvider)

// WithSessionTokenExpiry sets the session token lifetime
func WithSessionTokenExpiry(expiry time.Duration) LocalProviderOption {
	return func(p *LocalProvider) {
		p.SessionTokenExpiry = expiry
	}
}

// NewLocalProvider creates a new local identity provider
func NewLocalProvider(secret, issuer, audience string, opts ...LocalProviderOption) *LocalProvider {
	p := &LocalProvider{
		identities:         make(map[string]string),
		Secret:             secret,
		Issuer:             issuer,
		Audience:           audience,
		SessionTokenExpiry: DefaultSessionTokenExpiry,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetOrCreateIdentity returns the identity bound to the login key, creating
// one if absent, along with a fresh session token
func (p *LocalProvider) GetOrCreateIdentity(ctx context.Context, loginKey string) (Identity, error) {
	p.mu.Lock()
	identityID, ok := p.identities[loginKey]
	if !ok {
		identityID = uuid.New().String()
		p.identities[loginKey] = identityID
		slog.Info("Created identity", "login_key", loginKey, "identity_id", identityID)
	}
	p.mu.Unlock()

	token, expiresAt, err := p.mintSessionToken(identityID)
	if err != nil {
		slog.Error("Failed to sign session token", "identity_id", identityID, "err", err)
		return Identity{}, err
	}

	return Identity{
		ID:           identityID,
		SessionToken: token,
		ExpiresAt:    expiresAt,
	}, nil
}

// LookupIdentity resolves the identity id bound to the login key
func (p *LocalProvider) LookupIdentity(ctx context.Context, loginKey string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	identityID, ok := p.identities[loginKey]
	if !ok {
		return "", ErrIdentityNotFound
	}
	return identityID, nil
}

// RevokeIdentity deletes the identity from the pool
func (p *LocalProvider) RevokeIdentity(ctx context.Context, identityID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for loginKey, id := range p.identities {
		if id == identityID {
			delete(p.identities, loginKey)
			return nil
		}
	}
	return ErrIdentityNotFound
}

func (p *LocalProvider) mintSessionToken(identityID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(p.SessionTokenExpiry)
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    p.Issuer,
		Subject:   identityID,
		ID:        uuid.New().String(),
		Audience:  jwt.ClaimStrings{p.Audience},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(p.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return ss, expiresAt, nil
}
