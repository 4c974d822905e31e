// Package integrations defines the persisted Integration record, one per
// (tenant, provider) pair, and the store contract it lives behind.
package integrations

import (
	"time"

	"integration-hub/internal/providers"
)

// SyncStatus is the persisted status column of an integration.
type SyncStatus string

const (
	StatusIdle        SyncStatus = "idle"
	StatusSyncing     SyncStatus = "syncing"
	StatusError       SyncStatus = "error"
	StatusPendingAuth SyncStatus = "pending_auth"
)

// State is the derived lifecycle state of an integration. The store only
// persists SyncStatus and IsActive; State folds the pair (plus the pending
// blob and credential presence) into the one value callers reason about.
type State string

const (
	StateDisconnected   State = "disconnected"
	StatePendingAuth    State = "pending_auth"
	StateActive         State = "active"
	StateSyncing        State = "syncing"
	StateError          State = "error"
	StateReauthRequired State = "reauth_required"
)

// PendingState holds the transient CSRF state blob while an OAuth flow is
// in flight. It is cleared on completion and must never outlive ExpiresAt.
type PendingState struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the pending flow window has closed.
func (p *PendingState) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Integration is one tenant's connection to one advertising/analytics
// provider. Token material is stored only as cipher blobs.
type Integration struct {
	ID       string             `json:"id"`
	TenantID string             `json:"tenant_id"`
	Provider providers.Provider `json:"provider"`

	AccessTokenCipher  string     `json:"-"`
	RefreshTokenCipher string     `json:"-"`
	TokenExpiresAt     *time.Time `json:"token_expires_at,omitempty"`

	AccountID   string   `json:"account_id,omitempty"`
	AccountName string   `json:"account_name,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`

	IsActive   bool       `json:"is_active"`
	SyncStatus SyncStatus `json:"sync_status"`
	LastError  string     `json:"last_error,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`

	PendingState *PendingState `json:"-"`

	// StatusChangedAt tracks the last SyncStatus transition; a stuck
	// syncing status is recoverable once it is old enough.
	StatusChangedAt time.Time `json:"status_changed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the lifecycle state from the persisted fields.
func (i *Integration) State() State {
	switch {
	case i.SyncStatus == StatusPendingAuth && i.PendingState != nil:
		return StatePendingAuth
	case i.SyncStatus == StatusPendingAuth:
		// No pending flow, not active: credentials were rejected terminally.
		return StateReauthRequired
	case !i.IsActive:
		return StateDisconnected
	case i.SyncStatus == StatusSyncing:
		return StateSyncing
	case i.SyncStatus == StatusError:
		return StateError
	default:
		return StateActive
	}
}

// HasRefreshToken reports whether a refresh credential is stored.
func (i *Integration) HasRefreshToken() bool {
	return i.RefreshTokenCipher != ""
}

// TokenExpiringWithin reports whether the access token expires inside the
// given window. Integrations without a declared expiry never report true.
func (i *Integration) TokenExpiringWithin(now time.Time, window time.Duration) bool {
	if i.TokenExpiresAt == nil {
		return false
	}
	return i.TokenExpiresAt.Sub(now) < window
}

// ClearCredentials wipes all token material. Used on full disconnect only;
// a terminal refresh rejection keeps the ciphers for the audit trail.
func (i *Integration) ClearCredentials() {
	i.AccessTokenCipher = ""
	i.RefreshTokenCipher = ""
	i.TokenExpiresAt = nil
}
