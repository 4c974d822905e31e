package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/logging"
	"integration-hub/internal/crypto"
	"integration-hub/internal/integrations"
	"integration-hub/internal/oauth"
	"integration-hub/internal/oauthstate"
	"integration-hub/internal/providers"
)

type testRig struct {
	engine       *Engine
	store        *integrations.MemoryStore
	cipher       *crypto.TokenCipher
	pullCalls    int64
	pullErr      error
	refreshCalls int64
	refreshCode  int
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{refreshCode: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&rig.refreshCalls, 1)
		if rig.refreshCode != http.StatusOK {
			w.WriteHeader(rig.refreshCode)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "refreshed-access",
			"expires_in":   3600,
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	store := integrations.NewMemoryStore()
	registry := providers.NewRegistry(map[providers.Provider]providers.Config{
		providers.GoogleAds: {
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURL:  "https://app.example.com/cb",
			TokenURL:     server.URL + "/token",
			AuthURL:      server.URL + "/auth",
			ProfileURL:   server.URL + "/profile",
		},
	})
	cipher, err := crypto.NewTokenCipher(strings.Repeat("k", 32))
	require.NoError(t, err)
	issuer, err := oauthstate.NewIssuer("state-secret")
	require.NoError(t, err)

	logger := logging.NewDefaultLogger()
	orchestrator := oauth.NewOrchestrator(store, registry, cipher, issuer, logger)

	puller := PullerFunc(func(ctx context.Context, integration *integrations.Integration, accessToken string) error {
		atomic.AddInt64(&rig.pullCalls, 1)
		return rig.pullErr
	})

	rig.engine = NewEngine(store, orchestrator, cipher, puller, logger)
	rig.store = store
	rig.cipher = cipher
	return rig
}

func (rig *testRig) seedActive(t *testing.T, tenantID string) *integrations.Integration {
	t.Helper()

	accessCipher, err := rig.cipher.Encrypt("live-access-token")
	require.NoError(t, err)
	refreshCipher, err := rig.cipher.Encrypt("live-refresh-token")
	require.NoError(t, err)

	expiry := time.Now().Add(2 * time.Hour)
	integration := &integrations.Integration{
		TenantID:           tenantID,
		Provider:           providers.GoogleAds,
		AccessTokenCipher:  accessCipher,
		RefreshTokenCipher: refreshCipher,
		TokenExpiresAt:     &expiry,
		IsActive:           true,
		SyncStatus:         integrations.StatusIdle,
		StatusChangedAt:    time.Now(),
	}
	require.NoError(t, rig.store.Upsert(context.Background(), integration))
	return integration
}

func TestSyncSuccess(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	require.NoError(t, rig.engine.Sync(context.Background(), "tenant-1", integration.ID))
	assert.Equal(t, int64(1), atomic.LoadInt64(&rig.pullCalls))
	// Token is hours from expiry: no refresh needed.
	assert.Zero(t, atomic.LoadInt64(&rig.refreshCalls))

	got, err := rig.store.GetByID(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Equal(t, integrations.StatusIdle, got.SyncStatus)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.LastSyncAt)
}

func TestSyncPullFailurePreservesLastSyncAt(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	lastSync := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	integration.LastSyncAt = &lastSync
	require.NoError(t, rig.store.Update(context.Background(), integration))

	rig.pullErr = fmt.Errorf("platform returned 500")
	err := rig.engine.Sync(context.Background(), "tenant-1", integration.ID)
	require.Error(t, err)

	got, err := rig.store.GetByID(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Equal(t, integrations.StatusError, got.SyncStatus)
	assert.Contains(t, got.LastError, "platform returned 500")
	assert.True(t, got.IsActive)
	require.NotNil(t, got.LastSyncAt)
	assert.Equal(t, lastSync, got.LastSyncAt.UTC().Truncate(time.Second))

	// Error status is a legal retry starting point.
	rig.pullErr = nil
	require.NoError(t, rig.engine.Sync(context.Background(), "tenant-1", integration.ID))
}

func TestSyncConcurrentCallersOneWins(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var mu sync.Mutex
	outcomes := make([]error, 0, 2)

	slowPull := PullerFunc(func(ctx context.Context, in *integrations.Integration, token string) error {
		started <- struct{}{}
		<-release
		return nil
	})
	rig.engine.puller = slowPull

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := rig.engine.Sync(context.Background(), "tenant-1", integration.ID)
			mu.Lock()
			outcomes = append(outcomes, err)
			mu.Unlock()
		}()
	}

	// Exactly one caller reaches the pull; unblock it once the loser has
	// had its chance.
	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	var winners, losers int
	for _, err := range outcomes {
		if err == nil {
			winners++
		} else if errors.IsType(err, errors.ErrTypeAlreadySyncing) {
			losers++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)
}

func TestSyncStaleSyncingTakenOver(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	integration.SyncStatus = integrations.StatusSyncing
	integration.StatusChangedAt = time.Now().Add(-20 * time.Minute)
	require.NoError(t, rig.store.Update(context.Background(), integration))

	require.NoError(t, rig.engine.Sync(context.Background(), "tenant-1", integration.ID))
	assert.Equal(t, int64(1), atomic.LoadInt64(&rig.pullCalls))
}

func TestSyncFreshSyncingRejected(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	integration.SyncStatus = integrations.StatusSyncing
	integration.StatusChangedAt = time.Now()
	require.NoError(t, rig.store.Update(context.Background(), integration))

	err := rig.engine.Sync(context.Background(), "tenant-1", integration.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeAlreadySyncing))
	assert.Zero(t, atomic.LoadInt64(&rig.pullCalls))
}

func TestSyncReclaimsAbandonedReauth(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	// A re-authorization over the active record was abandoned: the pending
	// blob expired and no callback will ever clear it.
	integration.SyncStatus = integrations.StatusPendingAuth
	integration.PendingState = &integrations.PendingState{
		Token:     "stale-state-token",
		ExpiresAt: time.Now().Add(-30 * time.Minute),
	}
	require.NoError(t, rig.store.Update(context.Background(), integration))

	require.NoError(t, rig.engine.Sync(context.Background(), "tenant-1", integration.ID))
	assert.Equal(t, int64(1), atomic.LoadInt64(&rig.pullCalls))

	got, err := rig.store.GetByID(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Equal(t, integrations.StatusIdle, got.SyncStatus)
	assert.Nil(t, got.PendingState)
	assert.True(t, got.IsActive)
}

func TestSyncLiveReauthFlowStaysBlocked(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	integration.SyncStatus = integrations.StatusPendingAuth
	integration.PendingState = &integrations.PendingState{
		Token:     "fresh-state-token",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, rig.store.Update(context.Background(), integration))

	err := rig.engine.Sync(context.Background(), "tenant-1", integration.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeAlreadySyncing))
	assert.Zero(t, atomic.LoadInt64(&rig.pullCalls))

	got, err := rig.store.GetByID(context.Background(), integration.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PendingState)
	assert.Equal(t, "fresh-state-token", got.PendingState.Token)
}

func TestSyncInactiveShortCircuits(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	integration.IsActive = false
	integration.SyncStatus = integrations.StatusPendingAuth
	integration.LastError = "refresh token rejected, re-authentication required"
	require.NoError(t, rig.store.Update(context.Background(), integration))

	err := rig.engine.Sync(context.Background(), "tenant-1", integration.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeInactive))
	assert.Zero(t, atomic.LoadInt64(&rig.pullCalls))
}

func TestSyncProactiveRefresh(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	soon := time.Now().Add(2 * time.Minute)
	integration.TokenExpiresAt = &soon
	require.NoError(t, rig.store.Update(context.Background(), integration))

	require.NoError(t, rig.engine.Sync(context.Background(), "tenant-1", integration.ID))
	assert.Equal(t, int64(1), atomic.LoadInt64(&rig.refreshCalls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&rig.pullCalls))

	got, err := rig.store.GetByID(context.Background(), integration.ID)
	require.NoError(t, err)
	plaintext, err := rig.cipher.Decrypt(got.AccessTokenCipher)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", plaintext)
}

func TestSyncRefreshRejectionShortCircuitsPull(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	soon := time.Now().Add(2 * time.Minute)
	integration.TokenExpiresAt = &soon
	require.NoError(t, rig.store.Update(context.Background(), integration))

	rig.refreshCode = http.StatusUnauthorized
	err := rig.engine.Sync(context.Background(), "tenant-1", integration.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeRefreshTokenInvalid))
	assert.Zero(t, atomic.LoadInt64(&rig.pullCalls))

	got, err := rig.store.GetByID(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, integrations.StateReauthRequired, got.State())

	// The next sync short-circuits before touching the platform.
	err = rig.engine.Sync(context.Background(), "tenant-1", integration.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeInactive))
	assert.Zero(t, atomic.LoadInt64(&rig.pullCalls))
}

func TestSyncForeignTenant(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	err := rig.engine.Sync(context.Background(), "tenant-2", integration.ID)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}
