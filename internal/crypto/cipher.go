// Package crypto provides AES-256-GCM encryption and decryption for
// credential material at rest: provider access and refresh tokens are never
// stored in plaintext.
//
// The cipher uses AES-256-GCM which provides both confidentiality and
// authenticity. Each encryption uses a fresh random nonce, so encrypting the
// same plaintext twice produces different blobs. The blob layout is
// base64(nonce || ciphertext || tag) with the fixed 12-byte GCM nonce and
// 16-byte tag, which leaves room to introduce a versioned format later by
// length/prefix inspection.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"integration-hub/internal/common/errors"
)

// keyDerivationIterations is the PBKDF2 iteration count for deriving the
// AES key from the configured secret.
const keyDerivationIterations = 10000

// TokenCipher encrypts and decrypts credential blobs using AES-256-GCM.
// It is safe for concurrent use by multiple goroutines.
type TokenCipher struct {
	key []byte // 32-byte AES-256 key derived from the configured secret
}

// NewTokenCipher creates a TokenCipher from the configured secret key.
//
// The secret is run through PBKDF2 so any non-empty input yields a proper
// 32-byte AES-256 key. An empty secret is a configuration error; callers
// treat it as fatal at startup, there is no runtime fallback.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, errors.ConfigError("credential encryption key is required")
	}

	salt := []byte("integration-hub-token-cipher")
	derivedKey := pbkdf2.Key([]byte(secret), salt, keyDerivationIterations, 32, sha256.New)

	return &TokenCipher{key: derivedKey}, nil
}

// Encrypt encrypts plaintext and returns an opaque base64 blob.
// Empty input encrypts to the empty blob.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts a blob produced by Encrypt and returns the plaintext.
//
// Malformed encoding, truncated input, and authentication failures (tamper
// or wrong key) all surface as a decryption error. Callers must not treat a
// decryption failure as a healthy integration.
func (c *TokenCipher) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", errors.DecryptionError("malformed credential blob", err)
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+gcm.Overhead() {
		return "", errors.DecryptionError("credential blob too short", nil)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.DecryptionError("credential blob failed authentication", err)
	}

	return string(plaintext), nil
}

func (c *TokenCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}

	return gcm, nil
}
