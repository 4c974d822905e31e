package crypto

import (
	"encoding/base64"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-hub/internal/common/errors"
)

func newTestCipher(t *testing.T) *TokenCipher {
	t.Helper()
	c, err := NewTokenCipher("unit-test-secret-key")
	require.NoError(t, err)
	return c
}

func TestNewTokenCipherRequiresKey(t *testing.T) {
	_, err := NewTokenCipher("")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	rng := rand.New(rand.NewSource(42))
	lengths := []int{0, 1, 2, 16, 255, 1024, 10000}

	for _, n := range lengths {
		buf := make([]byte, n)
		rng.Read(buf)
		plaintext := string(buf)

		blob, err := c.Encrypt(plaintext)
		require.NoError(t, err, "length %d", n)

		decrypted, err := c.Decrypt(blob)
		require.NoError(t, err, "length %d", n)
		assert.Equal(t, plaintext, decrypted, "length %d", n)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	c := newTestCipher(t)

	first, err := c.Encrypt("refresh-token-value")
	require.NoError(t, err)
	second, err := c.Encrypt("refresh-token-value")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "same plaintext must not produce the same blob")
}

func TestDecryptRejectsBitFlips(t *testing.T) {
	c := newTestCipher(t)

	blob, err := c.Encrypt("access-token-value")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	for i := 0; i < len(raw); i++ {
		flipped := make([]byte, len(raw))
		copy(flipped, raw)
		flipped[i] ^= 0x01

		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(flipped))
		require.Error(t, err, "bit flip at byte %d must fail", i)
		assert.True(t, errors.IsType(err, errors.ErrTypeDecryption), "bit flip at byte %d", i)
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c := newTestCipher(t)

	for _, blob := range []string{
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("short")),
	} {
		_, err := c.Decrypt(blob)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeDecryption))
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewTokenCipher("a-different-secret-key")
	require.NoError(t, err)

	blob, err := c.Encrypt("access-token-value")
	require.NoError(t, err)

	_, err = other.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDecryption))
}
