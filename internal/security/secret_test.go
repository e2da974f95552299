package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("seed")
	require.NoError(t, err)

	enc1, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	enc2, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, enc1, enc2, "nonce must differ per call")
	assert.NotContains(t, enc1, "s3cret")

	plain, err := c.Decrypt(enc1)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)
}

func TestCipherErrors(t *testing.T) {
	_, err := NewCipher("  ")
	assert.Error(t, err)

	c, err := NewCipher("seed")
	require.NoError(t, err)
	other, err := NewCipher("other-seed")
	require.NoError(t, err)

	_, err = c.Encrypt("")
	assert.Error(t, err)

	enc, err := c.Encrypt("s3cret")
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	assert.Error(t, err, "wrong key")

	_, err = c.Decrypt("%%%")
	assert.Error(t, err)
	_, err = c.Decrypt("YWJj")
	assert.Error(t, err, "shorter than nonce")
}
