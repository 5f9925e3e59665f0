package registration

import (
	"context"
	"sync"
	"time"
)

// InMemoryRegistrationRepository implements RegistrationRepository using
// in-memory storage. Intended for tests and single-process deployments.
type InMemoryRegistrationRepository struct {
	mu            sync.RWMutex
	registrations map[Key]Registration
	byUsername    map[string][]Key
	byEmail       map[string][]Key
}

// NewInMemoryRegistrationRepository creates a new in-memory registration repository
func NewInMemoryRegistrationRepository() *InMemoryRegistrationRepository {
	return &InMemoryRegistrationRepository{
		registrations: make(map[Key]Registration),
		byUsername:    make(map[string][]Key),
		byEmail:       make(map[string][]Key),
	}
}

// GetByKey returns the registration for the composite key
func (r *InMemoryRegistrationRepository) GetByKey(ctx context.Context, key Key) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.registrations[key]
	if !ok {
		return Registration{}, ErrRegistrationNotFound
	}
	return reg, nil
}

// Create inserts a new registration if the key is absent
func (r *InMemoryRegistrationRepository) Create(ctx context.Context, reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reg.Key()
	if _, exists := r.registrations[key]; exists {
		return ErrDuplicateKey
	}

	now := time.Now().UTC()
	reg.CreatedAt = now
	reg.UpdatedAt = now
	r.registrations[key] = reg
	r.byUsername[reg.Username] = append(r.byUsername[reg.Username], key)
	if reg.Email != "" {
		r.byEmail[reg.Email] = append(r.byEmail[reg.Email], key)
	}
	return nil
}

// QueryByUsername returns all registrations for a username
func (r *InMemoryRegistrationRepository) QueryByUsername(ctx context.Context, username string) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byUsername[username]
	regs := make([]Registration, 0, len(keys))
	for _, key := range keys {
		if reg, ok := r.registrations[key]; ok {
			regs = append(regs, reg)
		}
	}
	return regs, nil
}

// QueryByEmail returns all registrations for an email address
func (r *InMemoryRegistrationRepository) QueryByEmail(ctx context.Context, email string) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byEmail[email]
	regs := make([]Registration, 0, len(keys))
	for _, key := range keys {
		if reg, ok := r.registrations[key]; ok {
			regs = append(regs, reg)
		}
	}
	return regs, nil
}

// Delete removes the registration for the composite key
func (r *InMemoryRegistrationRepository) Delete(ctx context.Context, key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.registrations[key]
	if !ok {
		return ErrRegistrationNotFound
	}
	delete(r.registrations, key)
	r.byUsername[reg.Username] = removeKey(r.byUsername[reg.Username], key)
	if reg.Email != "" {
		r.byEmail[reg.Email] = removeKey(r.byEmail[reg.Email], key)
	}
	return nil
}

// SetToken stores a single-use token, clearing any token of the other kind
func (r *InMemoryRegistrationRepository) SetToken(ctx context.Context, key Key, kind TokenKind, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.registrations[key]
	if !ok {
		return ErrRegistrationNotFound
	}
	switch kind {
	case TokenKindVerification:
		reg.VerificationToken = token
		reg.PasswordResetToken = ""
	case TokenKindPasswordReset:
		reg.PasswordResetToken = token
		reg.VerificationToken = ""
	default:
		return ErrTokenMismatch
	}
	reg.TokenExpiresAt = expiresAt
	reg.UpdatedAt = time.Now().UTC()
	r.registrations[key] = reg
	return nil
}

// ConsumeVerificationToken atomically clears the token and activates the registration
func (r *InMemoryRegistrationRepository) ConsumeVerificationToken(ctx context.Context, key Key, token string) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.registrations[key]
	if !ok {
		return Registration{}, ErrRegistrationNotFound
	}
	if token == "" || reg.VerificationToken != token {
		return Registration{}, ErrTokenMismatch
	}
	reg.VerificationToken = ""
	reg.TokenExpiresAt = time.Time{}
	reg.State = StateActive
	reg.UpdatedAt = time.Now().UTC()
	r.registrations[key] = reg
	return reg, nil
}

// ConsumePasswordResetToken atomically clears the token and replaces the password hash
func (r *InMemoryRegistrationRepository) ConsumePasswordResetToken(ctx context.Context, key Key, token string, newHash []byte) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.registrations[key]
	if !ok {
		return Registration{}, ErrRegistrationNotFound
	}
	if token == "" || reg.PasswordResetToken != token {
		return Registration{}, ErrTokenMismatch
	}
	reg.PasswordResetToken = ""
	reg.TokenExpiresAt = time.Time{}
	reg.PasswordHash = newHash
	reg.UpdatedAt = time.Now().UTC()
	r.registrations[key] = reg
	return reg, nil
}

// UpdateIdentityID records the federation identity bound to the registration
func (r *InMemoryRegistrationRepository) UpdateIdentityID(ctx context.Context, key Key, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.registrations[key]
	if !ok {
		return ErrRegistrationNotFound
	}
	reg.IdentityID = identityID
	reg.UpdatedAt = time.Now().UTC()
	r.registrations[key] = reg
	return nil
}

func removeKey(keys []Key, key Key) []Key {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
