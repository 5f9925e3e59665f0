package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, []byte("secret123"), hash)

	// Salted: hashing the same password twice yields different digests.
	other, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)

	ok, err := CheckPasswordHash("secret123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPasswordHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CheckPasswordHash("", hash)
	assert.Error(t, err)

	_, err = CheckPasswordHash("secret123", nil)
	assert.Error(t, err)

	_, err = CheckPasswordHash("secret123", []byte("not-a-bcrypt-hash"))
	assert.Error(t, err)
}
