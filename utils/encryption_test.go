package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	first, err := c.Encrypt("app password")
	require.NoError(t, err)
	second, err := c.Encrypt("app password")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "nonce must differ per call")

	plain, err := c.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, "app password", plain)

	empty, err := c.Encrypt("")
	require.NoError(t, err)
	plain, err = c.Decrypt(empty)
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestCipherRejectsForeignCiphertext(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)
	other, err := NewCipher("another-secret")
	require.NoError(t, err)

	sealed, err := c.Encrypt("app password")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = c.Decrypt("%%%")
	assert.Error(t, err)

	_, err = c.Decrypt("c2hvcnQ=")
	assert.ErrorIs(t, err, errCiphertextTooShort)
}

func TestNewCipherRequiresSecret(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}
