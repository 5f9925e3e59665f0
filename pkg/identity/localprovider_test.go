package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderGetOrCreateIdentity(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider("test-secret", "loginn", "loginn-clients")

	first, err := provider.GetOrCreateIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, first.SessionToken)
	assert.True(t, first.ExpiresAt.After(time.Now().UTC()))

	t.Run("Idempotent", func(t *testing.T) {
		second, err := provider.GetOrCreateIdentity(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("DistinctPerLoginKey", func(t *testing.T) {
		other, err := provider.GetOrCreateIdentity(ctx, "bob")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("TokenSignedWithSecret", func(t *testing.T) {
		parsed, err := jwt.Parse(first.SessionToken, func(token *jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		})
		require.NoError(t, err)
		assert.True(t, parsed.Valid)

		subject, err := parsed.Claims.GetSubject()
		require.NoError(t, err)
		assert.Equal(t, first.ID, subject)

		issuer, err := parsed.Claims.GetIssuer()
		require.NoError(t, err)
		assert.Equal(t, "loginn", issuer)
	})
}

func TestLocalProviderLookupIdentity(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider("test-secret", "loginn", "loginn-clients")

	_, err := provider.LookupIdentity(ctx, "ghost")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	created, err := provider.GetOrCreateIdentity(ctx, "carol")
	require.NoError(t, err)

	id, err := provider.LookupIdentity(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, created.ID, id)
}

func TestLocalProviderRevokeIdentity(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider("test-secret", "loginn", "loginn-clients")

	created, err := provider.GetOrCreateIdentity(ctx, "dave")
	require.NoError(t, err)

	require.NoError(t, provider.RevokeIdentity(ctx, created.ID))

	_, err = provider.LookupIdentity(ctx, "dave")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	assert.ErrorIs(t, provider.RevokeIdentity(ctx, created.ID), ErrIdentityNotFound)
}

func TestLocalProviderSessionTokenExpiryOption(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider("test-secret", "loginn", "loginn-clients",
		WithSessionTokenExpiry(-time.Minute))

	identity, err := provider.GetOrCreateIdentity(ctx, "erin")
	require.NoError(t, err)
	assert.True(t, identity.ExpiresAt.Before(time.Now().UTC()))
}
