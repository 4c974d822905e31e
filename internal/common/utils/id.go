// Package utils provides small helpers shared across the application:
// ID generation and retry with exponential backoff.
package utils

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/lucsky/cuid"
)

// GenerateID returns a collision-resistant identifier for new records
func GenerateID() string {
	return cuid.New()
}

// GenerateRandomHex returns n cryptographically random bytes hex-encoded.
// Panics if the system randomness source is unavailable.
func GenerateRandomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
