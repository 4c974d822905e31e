// Package auth authenticates API callers. The analytics product issues HS256
// JWTs carrying the tenant identity; this package validates them and puts
// the tenant id on the request context for every handler downstream.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"integration-hub/internal/common/errors"
)

type contextKey string

// TenantIDKey is the context key carrying the authenticated tenant id.
const TenantIDKey contextKey = "tenant_id"

// Claims is the JWT payload the analytics product signs for API calls.
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens against the shared signing secret.
type Auth struct {
	secret []byte
}

func New(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// ValidateToken parses and verifies a bearer token, returning its claims.
func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.AuthError("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, errors.AuthError("invalid token")
	}
	if !token.Valid || claims.TenantID == "" {
		return nil, errors.AuthError("invalid token")
	}
	return claims, nil
}

// IssueToken signs a token for a tenant. The analytics product normally does
// this; the hub exposes it for tooling and tests.
func (a *Auth) IssueToken(tenantID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// RequireTenant rejects requests without a valid bearer token and stores the
// tenant id on the context.
func (a *Auth) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			unauthorized(w)
			return
		}

		claims, err := a.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), TenantIDKey, claims.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantID extracts the authenticated tenant from a request context.
func TenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(TenantIDKey).(string)
	return tenantID
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "Authentication required"}`))
}
