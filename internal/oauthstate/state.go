// Package oauthstate issues and validates the CSRF state tokens that bind an
// OAuth authorization request to the tenant and provider that initiated it.
//
// A state token is base64url(payload) + "." + base64url(hmac-sha256(payload))
// where the payload carries the tenant, provider, a random nonce and the
// issue time. The token is opaque to the browser and the provider; only this
// service can mint or verify one. Validation is the security gate in front
// of every token exchange: a callback whose state does not match the pending
// record, fails signature verification, or is older than the TTL is rejected
// before any network call happens.
package oauthstate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/utils"
)

// TTL is how long an issued state token stays valid.
const TTL = 10 * time.Minute

// nonceSize is the number of random bytes in each token.
const nonceSize = 16

// Claims is the decoded content of a state token.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"issued_at"`
}

// Issued returns the issue time of the claims.
func (c *Claims) Issued() time.Time {
	return time.Unix(c.IssuedAt, 0)
}

// Issuer mints and validates signed state tokens.
type Issuer struct {
	key []byte

	// now is replaceable in tests
	now func() time.Time
}

// NewIssuer creates an Issuer signing with the given secret.
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.ConfigError("state signing secret is required")
	}

	sum := sha256.Sum256([]byte(secret))
	return &Issuer{key: sum[:], now: time.Now}, nil
}

// Issue produces a state token bound to the tenant and provider. The token
// expires TTL after issuance.
func (i *Issuer) Issue(tenantID, provider string) (string, error) {
	if tenantID == "" || provider == "" {
		return "", errors.ValidationError("tenant and provider are required for state issuance")
	}

	claims := Claims{
		TenantID: tenantID,
		Provider: provider,
		Nonce:    utils.GenerateRandomHex(nonceSize),
		IssuedAt: i.now().Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", errors.InternalError("failed to encode state claims", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(i.sign(payload)), nil
}

// Validate checks a callback's state token against the token persisted on
// the pending integration record. It returns the claims only if the token
// matches the stored one exactly, carries a valid signature, and is within
// its TTL. Mismatch and forgery surface as InvalidState, age as ExpiredState.
func (i *Issuer) Validate(token, stored string) (*Claims, error) {
	if token == "" || stored == "" {
		return nil, errors.InvalidStateError()
	}

	// The callback must present the exact token persisted at initiation.
	if !hmac.Equal([]byte(token), []byte(stored)) {
		return nil, errors.InvalidStateError()
	}

	claims, err := i.decode(token)
	if err != nil {
		return nil, err
	}

	if i.now().Sub(claims.Issued()) > TTL {
		return nil, errors.ExpiredStateError()
	}

	return claims, nil
}

// Decode verifies the signature and returns the claims without the
// stored-token and TTL checks. Callers use it to locate the pending record a
// callback belongs to, then run Validate against what that record stores.
func (i *Issuer) Decode(token string) (*Claims, error) {
	return i.decode(token)
}

// decode verifies the signature and parses the payload.
func (i *Issuer) decode(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, errors.InvalidStateError()
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.InvalidStateError()
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.InvalidStateError()
	}

	if !hmac.Equal(sig, i.sign(payload)) {
		return nil, errors.InvalidStateError()
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errors.InvalidStateError()
	}

	if claims.TenantID == "" || claims.Provider == "" || claims.Nonce == "" {
		return nil, errors.InvalidStateError()
	}

	return &claims, nil
}

func (i *Issuer) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, i.key)
	mac.Write(payload)
	return mac.Sum(nil)
}
