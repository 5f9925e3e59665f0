package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loginn-io/loginn/pkg/registration"
)

// Manager keeps exactly one federation identity live per username, created
// lazily. The login key passed to the provider is the plain username, shared
// by all of that username's registrations.
type Manager struct {
	provider FederationProvider
	repo     registration.RegistrationRepository
}

// NewManager creates a new identity binding manager
func NewManager(provider FederationProvider, repo registration.RegistrationRepository) *Manager {
	return &Manager{
		provider: provider,
		repo:     repo,
	}
}

// EnsureIdentity returns the federation identity for the username, creating
// one at the provider if absent. Idempotent for the same username.
func (m *Manager) EnsureIdentity(ctx context.Context, username string) (Identity, error) {
	identity, err := m.provider.GetOrCreateIdentity(ctx, username)
	if err != nil {
		slog.Error("Failed to get or create identity", "username", username, "err", err)
		return Identity{}, fmt.Errorf("failed to ensure identity: %w", err)
	}
	return identity, nil
}

// LookupIdentity resolves the identity id currently bound to the username
func (m *Manager) LookupIdentity(ctx context.Context, username string) (string, error) {
	return m.provider.LookupIdentity(ctx, username)
}

// RevokeIfOrphaned deletes the username's federation identity when no
// registrations reference it anymore. Returns whether a revocation happened.
//
// The count and the revoke are two separate calls: a registration created
// concurrently between them can end up referencing a deleted identity. The
// next EnsureIdentity recreates one, so this stays best-effort cleanup.
func (m *Manager) RevokeIfOrphaned(ctx context.Context, username string) (bool, error) {
	regs, err := m.repo.QueryByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to count registrations: %w", err)
	}
	if len(regs) > 0 {
		return false, nil
	}

	identityID, err := m.provider.LookupIdentity(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := m.provider.RevokeIdentity(ctx, identityID); err != nil {
		slog.Error("Failed to revoke identity", "username", username, "identity_id", identityID, "err", err)
		return false, err
	}
	slog.Info("Revoked orphaned identity", "username", username, "identity_id", identityID)
	return true, nil
}
