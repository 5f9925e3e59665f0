package token

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loginn-io/loginn/pkg/registration"
)

func seedRegistration(t *testing.T, repo registration.RegistrationRepository, service, username string) registration.Registration {
	t.Helper()
	reg := registration.Registration{
		Service:      service,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: []byte("$2a$10$seedhash"),
		State:        registration.StatePendingVerification,
	}
	require.NoError(t, repo.Create(context.Background(), reg))
	return reg
}

func TestIssue(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := Issue()
		require.NoError(t, err)
		assert.False(t, seen[token], "tokens must not repeat")
		seen[token] = true

		// URL-safe: the token goes into a query string unescaped.
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.GreaterOrEqual(t, len(token), 32)
	}
}

func TestStampVerification(t *testing.T) {
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo)

	reg := registration.Registration{Service: "svc1", Username: "alice"}
	token, err := engine.StampVerification(&reg)
	require.NoError(t, err)

	assert.Equal(t, token, reg.VerificationToken)
	assert.Empty(t, reg.PasswordResetToken)
	assert.True(t, reg.TokenExpiresAt.After(time.Now().UTC()))
}

func TestBindAndConsumeVerification(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo)

	reg := seedRegistration(t, repo, "svc1", "alice")

	token, err := engine.Bind(ctx, reg.Key(), registration.TokenKindVerification)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("WrongToken", func(t *testing.T) {
		_, err := engine.ConsumeVerification(ctx, "alice", "bogus")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("EmptyToken", func(t *testing.T) {
		_, err := engine.ConsumeVerification(ctx, "alice", "")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("UnknownUsername", func(t *testing.T) {
		_, err := engine.ConsumeVerification(ctx, "nobody", token)
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("Consume", func(t *testing.T) {
		got, err := engine.ConsumeVerification(ctx, "alice", token)
		require.NoError(t, err)
		assert.Equal(t, registration.StateActive, got.State)
		assert.Empty(t, got.VerificationToken)
	})

	t.Run("Replay", func(t *testing.T) {
		_, err := engine.ConsumeVerification(ctx, "alice", token)
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})
}

func TestBindOverwritesPriorToken(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo)

	reg := seedRegistration(t, repo, "svc1", "bob")

	first, err := engine.Bind(ctx, reg.Key(), registration.TokenKindVerification)
	require.NoError(t, err)
	second, err := engine.Bind(ctx, reg.Key(), registration.TokenKindVerification)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = engine.ConsumeVerification(ctx, "bob", first)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = engine.ConsumeVerification(ctx, "bob", second)
	assert.NoError(t, err)
}

func TestBindClearsOtherKind(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo)

	reg := seedRegistration(t, repo, "svc1", "carol")

	vtok, err := engine.Bind(ctx, reg.Key(), registration.TokenKindVerification)
	require.NoError(t, err)
	_, err = engine.Bind(ctx, reg.Key(), registration.TokenKindPasswordReset)
	require.NoError(t, err)

	_, err = engine.ConsumeVerification(ctx, "carol", vtok)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestConsumePasswordReset(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo)

	reg := seedRegistration(t, repo, "svc1", "dave")

	token, err := engine.Bind(ctx, reg.Key(), registration.TokenKindPasswordReset)
	require.NoError(t, err)

	newHash := []byte("$2a$10$replacementhash")
	got, err := engine.ConsumePasswordReset(ctx, "dave", token, newHash)
	require.NoError(t, err)
	assert.Equal(t, newHash, got.PasswordHash)
	assert.Empty(t, got.PasswordResetToken)

	_, err = engine.ConsumePasswordReset(ctx, "dave", token, newHash)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestConsumeDerivesService(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo)

	seedRegistration(t, repo, "svc1", "erin")
	other := seedRegistration(t, repo, "svc2", "erin")

	// The token is bound to one of two registrations sharing a username;
	// consuming must land on the bound one.
	token, err := engine.Bind(ctx, other.Key(), registration.TokenKindVerification)
	require.NoError(t, err)

	got, err := engine.ConsumeVerification(ctx, "erin", token)
	require.NoError(t, err)
	assert.Equal(t, "svc2", got.Service)
}

func TestConsumeExpiredToken(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo,
		WithVerificationExpiry(-time.Minute),
		WithPasswordResetExpiry(-time.Minute))

	reg := seedRegistration(t, repo, "svc1", "frank")

	vtok, err := engine.Bind(ctx, reg.Key(), registration.TokenKindVerification)
	require.NoError(t, err)
	_, err = engine.ConsumeVerification(ctx, "frank", vtok)
	assert.ErrorIs(t, err, ErrTokenExpired)

	rtok, err := engine.Bind(ctx, reg.Key(), registration.TokenKindPasswordReset)
	require.NoError(t, err)
	_, err = engine.ConsumePasswordReset(ctx, "frank", rtok, []byte("hash"))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := registration.NewInMemoryRegistrationRepository()
	engine := NewEngine(repo)

	reg := seedRegistration(t, repo, "svc1", "grace")
	token, err := engine.Bind(ctx, reg.Key(), registration.TokenKindVerification)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	errCh := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ConsumeVerification(ctx, "grace", token)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	succeeded := 0
	for err := range errCh {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrTokenNotFound)
		}
	}
	assert.Equal(t, 1, succeeded, "a token is consumed exactly once")
}

func TestIssueTokenLength(t *testing.T) {
	token, err := Issue()
	require.NoError(t, err)
	// 32 random bytes base64-encoded.
	assert.Equal(t, 44, len(strings.TrimSpace(token)))
}
