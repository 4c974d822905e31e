package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeProviderNotConfigured means the provider has no client credentials configured
	ErrTypeProviderNotConfigured ErrorType = "provider_not_configured"
	// ErrTypeUnsupportedProvider means the provider name is not one we know
	ErrTypeUnsupportedProvider ErrorType = "unsupported_provider"
	// ErrTypeInvalidState means the OAuth state token failed validation
	ErrTypeInvalidState ErrorType = "invalid_state"
	// ErrTypeExpiredState means the OAuth state token outlived its window
	ErrTypeExpiredState ErrorType = "expired_state"
	// ErrTypeTokenExchange means the authorization-code exchange failed
	ErrTypeTokenExchange ErrorType = "token_exchange_failed"
	// ErrTypeTokenRefresh means a refresh attempt failed transiently
	ErrTypeTokenRefresh ErrorType = "token_refresh_failed"
	// ErrTypeRefreshTokenInvalid means the provider rejected the refresh token outright
	ErrTypeRefreshTokenInvalid ErrorType = "refresh_token_invalid"
	// ErrTypeNoRefreshToken means no refresh token is stored for the integration
	ErrTypeNoRefreshToken ErrorType = "no_refresh_token"
	// ErrTypeDecryption means stored ciphertext could not be decrypted
	ErrTypeDecryption ErrorType = "decryption"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeInactive means the integration is disconnected or awaiting re-auth
	ErrTypeInactive ErrorType = "integration_inactive"
	// ErrTypeAlreadySyncing means a sync is already running for the integration
	ErrTypeAlreadySyncing ErrorType = "already_syncing"
	// ErrTypeRateLimit represents rate limit errors
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeIPBlocked means the client is serving a hard block cooldown
	ErrTypeIPBlocked ErrorType = "ip_temporarily_blocked"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeAuth represents authentication errors
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Retriable bool                   `json:"retriable"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ProviderNotConfiguredError creates an error for a provider missing credentials
func ProviderNotConfiguredError(provider string) *AppError {
	return &AppError{
		Type:    ErrTypeProviderNotConfigured,
		Message: fmt.Sprintf("provider %s has no client credentials configured", provider),
	}
}

// UnsupportedProviderError creates an error for an unknown provider name
func UnsupportedProviderError(provider string) *AppError {
	return &AppError{
		Type:    ErrTypeUnsupportedProvider,
		Message: fmt.Sprintf("unsupported provider: %s", provider),
	}
}

// InvalidStateError creates an error for a forged or mismatched state token.
// The message is intentionally generic; state validation detail stays in the
// security log, never in responses.
func InvalidStateError() *AppError {
	return &AppError{
		Type:    ErrTypeInvalidState,
		Message: "invalid state token",
	}
}

// ExpiredStateError creates an error for a state token past its window
func ExpiredStateError() *AppError {
	return &AppError{
		Type:    ErrTypeExpiredState,
		Message: "state token has expired",
	}
}

// TokenExchangeError creates an error for a failed authorization-code exchange.
// retriable distinguishes transport failures (true) from provider-rejected
// codes (false) - a used or expired code can never be replayed.
func TokenExchangeError(msg string, cause error, retriable bool) *AppError {
	return &AppError{
		Type:      ErrTypeTokenExchange,
		Message:   msg,
		Retriable: retriable,
		Cause:     cause,
	}
}

// TokenRefreshError creates a retriable error for a transient refresh failure
func TokenRefreshError(msg string, cause error) *AppError {
	return &AppError{
		Type:      ErrTypeTokenRefresh,
		Message:   msg,
		Retriable: true,
		Cause:     cause,
	}
}

// RefreshTokenInvalidError creates a terminal error: the stored refresh token
// was rejected by the provider and re-authentication is required
func RefreshTokenInvalidError(provider string) *AppError {
	return &AppError{
		Type:    ErrTypeRefreshTokenInvalid,
		Message: fmt.Sprintf("%s rejected the refresh token, re-authentication required", provider),
	}
}

// NoRefreshTokenError creates an error for a refresh attempt without a stored refresh token
func NoRefreshTokenError() *AppError {
	return &AppError{
		Type:    ErrTypeNoRefreshToken,
		Message: "no refresh token stored for integration",
	}
}

// DecryptionError creates an error for ciphertext that failed authentication or parsing
func DecryptionError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeDecryption,
		Message: msg,
		Cause:   cause,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// InactiveError creates an error for operations on a disconnected integration
func InactiveError(integrationID string) *AppError {
	return &AppError{
		Type:    ErrTypeInactive,
		Message: fmt.Sprintf("integration %s is not active", integrationID),
	}
}

// AlreadySyncingError creates an error for a sync that lost the status race
func AlreadySyncingError(integrationID string) *AppError {
	return &AppError{
		Type:    ErrTypeAlreadySyncing,
		Message: fmt.Sprintf("integration %s is already syncing", integrationID),
	}
}

// RateLimitError creates a new rate limit error
func RateLimitError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit exceeded for %s", operation),
	}
}

// IPBlockedError creates an error for a client serving a block cooldown
func IPBlockedError() *AppError {
	return &AppError{
		Type:    ErrTypeIPBlocked,
		Message: "too many failed attempts, temporarily blocked",
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a retriable timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:      ErrTypeTimeout,
		Message:   fmt.Sprintf("timeout during %s", operation),
		Retriable: true,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return ErrTypeInternal
	}

	return appErr.Type
}

// IsRetriable reports whether the error is worth retrying. Non-AppError
// values are treated as retriable transport-level failures.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}

	return appErr.Retriable
}
