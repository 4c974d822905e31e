package integrations

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/providers"
)

// The suite runs against every backend that does not need an external
// server. Postgres shares the scan and encode helpers with SQLite, so the
// SQLite run covers the row mapping too.
func storeBackends(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "integrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func testIntegration(tenantID string, provider providers.Provider) *Integration {
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	return &Integration{
		TenantID:           tenantID,
		Provider:           provider,
		AccessTokenCipher:  "cipher-access",
		RefreshTokenCipher: "cipher-refresh",
		TokenExpiresAt:     &expiry,
		AccountID:          "acct-1",
		AccountName:        "Test Account",
		Scopes:             []string{"ads.read", "ads.manage"},
		IsActive:           true,
		SyncStatus:         StatusIdle,
		StatusChangedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestStoreCRUD(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			integration := testIntegration("tenant-1", providers.GoogleAds)
			require.NoError(t, store.Upsert(ctx, integration))
			require.NotEmpty(t, integration.ID)

			got, err := store.GetByID(ctx, integration.ID)
			require.NoError(t, err)
			assert.Equal(t, "tenant-1", got.TenantID)
			assert.Equal(t, providers.GoogleAds, got.Provider)
			assert.Equal(t, "cipher-access", got.AccessTokenCipher)
			assert.Equal(t, []string{"ads.read", "ads.manage"}, got.Scopes)
			assert.True(t, got.IsActive)
			require.NotNil(t, got.TokenExpiresAt)

			got, err = store.GetByTenantAndProvider(ctx, "tenant-1", string(providers.GoogleAds))
			require.NoError(t, err)
			assert.Equal(t, integration.ID, got.ID)

			got.AccountName = "Renamed"
			got.SyncStatus = StatusError
			got.LastError = "pull failed"
			require.NoError(t, store.Update(ctx, got))

			got, err = store.GetByID(ctx, integration.ID)
			require.NoError(t, err)
			assert.Equal(t, "Renamed", got.AccountName)
			assert.Equal(t, StatusError, got.SyncStatus)
			assert.Equal(t, "pull failed", got.LastError)

			require.NoError(t, store.Delete(ctx, integration.ID))
			_, err = store.GetByID(ctx, integration.ID)
			assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
		})
	}
}

func TestStoreUpsertSamePairKeepsID(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := testIntegration("tenant-1", providers.MetaAds)
			require.NoError(t, store.Upsert(ctx, first))

			second := testIntegration("tenant-1", providers.MetaAds)
			second.AccountName = "Second Connect"
			require.NoError(t, store.Upsert(ctx, second))

			assert.Equal(t, first.ID, second.ID)

			all, err := store.ListByTenant(ctx, "tenant-1")
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "Second Connect", all[0].AccountName)
		})
	}
}

func TestStorePendingStateRoundTrip(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			integration := testIntegration("tenant-2", providers.LinkedInAds)
			integration.IsActive = false
			integration.SyncStatus = StatusPendingAuth
			integration.PendingState = &PendingState{
				Token:     "state-token",
				ExpiresAt: time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second),
			}
			require.NoError(t, store.Upsert(ctx, integration))

			got, err := store.GetByID(ctx, integration.ID)
			require.NoError(t, err)
			require.NotNil(t, got.PendingState)
			assert.Equal(t, "state-token", got.PendingState.Token)
			assert.Equal(t, StatePendingAuth, got.State())

			got.PendingState = nil
			got.SyncStatus = StatusIdle
			got.IsActive = true
			require.NoError(t, store.Update(ctx, got))

			got, err = store.GetByID(ctx, integration.ID)
			require.NoError(t, err)
			assert.Nil(t, got.PendingState)
			assert.Equal(t, StateActive, got.State())
		})
	}
}

func TestStoreListActive(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			active := testIntegration("tenant-a", providers.GoogleAds)
			require.NoError(t, store.Upsert(ctx, active))

			inactive := testIntegration("tenant-b", providers.MetaAds)
			inactive.IsActive = false
			require.NoError(t, store.Upsert(ctx, inactive))

			got, err := store.ListActive(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, active.ID, got[0].ID)
		})
	}
}

func TestStoreCompareAndSwapStatus(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			integration := testIntegration("tenant-1", providers.GoogleAnalytics)
			require.NoError(t, store.Upsert(ctx, integration))

			swapped, err := store.CompareAndSwapStatus(ctx, integration.ID, StatusIdle, StatusSyncing)
			require.NoError(t, err)
			assert.True(t, swapped)

			// Second claim must lose.
			swapped, err = store.CompareAndSwapStatus(ctx, integration.ID, StatusIdle, StatusSyncing)
			require.NoError(t, err)
			assert.False(t, swapped)

			got, err := store.GetByID(ctx, integration.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusSyncing, got.SyncStatus)

			swapped, err = store.CompareAndSwapStatus(ctx, integration.ID, StatusSyncing, StatusIdle)
			require.NoError(t, err)
			assert.True(t, swapped)
		})
	}
}

func TestStoreTakeOverStaleSync(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			integration := testIntegration("tenant-1", providers.GoogleAds)
			require.NoError(t, store.Upsert(ctx, integration))

			swapped, err := store.CompareAndSwapStatus(ctx, integration.ID, StatusIdle, StatusSyncing)
			require.NoError(t, err)
			require.True(t, swapped)

			// Fresh syncing status must not be stealable.
			won, err := store.TakeOverStaleSync(ctx, integration.ID, 15*time.Minute)
			require.NoError(t, err)
			assert.False(t, won)

			// Zero max age makes any syncing status stale.
			won, err = store.TakeOverStaleSync(ctx, integration.ID, 0)
			require.NoError(t, err)
			assert.True(t, won)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	integration := testIntegration("tenant-1", providers.GoogleAds)
	require.NoError(t, store.Upsert(ctx, integration))

	got, err := store.GetByID(ctx, integration.ID)
	require.NoError(t, err)
	got.AccountName = "mutated"
	got.Scopes[0] = "mutated"

	fresh, err := store.GetByID(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Account", fresh.AccountName)
	assert.Equal(t, "ads.read", fresh.Scopes[0])
}

func TestNewStoreFactory(t *testing.T) {
	store, err := NewStore(StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = NewStore(StoreConfig{Backend: "cassandra"})
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}
