package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-hub/internal/integrations"
	"integration-hub/internal/providers"
)

func TestCheckHealthHealthy(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	lastSync := time.Now().Add(-time.Hour)
	integration.LastSyncAt = &lastSync
	require.NoError(t, rig.store.Update(context.Background(), integration))

	report := rig.engine.CheckHealth(context.Background(), "tenant-1", integration.ID)
	assert.Equal(t, HealthStatusHealthy, report.Status)
	assert.True(t, report.IsHealthy)
	assert.Empty(t, report.Issues)
	assert.Equal(t, integrations.StateActive, report.State)
}

func TestCheckHealthNotFound(t *testing.T) {
	rig := newTestRig(t)

	report := rig.engine.CheckHealth(context.Background(), "tenant-1", "no-such-id")
	assert.Equal(t, HealthStatusError, report.Status)
	assert.False(t, report.IsHealthy)
	assert.Contains(t, report.Issues, "integration not found")
}

func TestCheckHealthForeignTenantLooksLikeNotFound(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	report := rig.engine.CheckHealth(context.Background(), "tenant-2", integration.ID)
	assert.Equal(t, HealthStatusError, report.Status)
	assert.Contains(t, report.Issues, "integration not found")
}

func TestCheckHealthReauthRequired(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	integration.IsActive = false
	integration.SyncStatus = integrations.StatusPendingAuth
	integration.LastError = "refresh token rejected, re-authentication required"
	require.NoError(t, rig.store.Update(context.Background(), integration))

	report := rig.engine.CheckHealth(context.Background(), "tenant-1", integration.ID)
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	assert.False(t, report.IsHealthy)
	assert.Equal(t, integrations.StateReauthRequired, report.State)
	assert.Contains(t, report.Issues, "re-authentication required")
}

func TestCheckHealthExpiredTokenNoRefresh(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	expired := time.Now().Add(-time.Hour)
	integration.TokenExpiresAt = &expired
	integration.RefreshTokenCipher = ""
	require.NoError(t, rig.store.Update(context.Background(), integration))

	report := rig.engine.CheckHealth(context.Background(), "tenant-1", integration.ID)
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	assert.Contains(t, report.Issues, "access token expired with no refresh token")
}

func TestCheckHealthExpiredTokenWithRefreshStaysHealthy(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	expired := time.Now().Add(-time.Hour)
	integration.TokenExpiresAt = &expired
	require.NoError(t, rig.store.Update(context.Background(), integration))

	report := rig.engine.CheckHealth(context.Background(), "tenant-1", integration.ID)
	assert.Equal(t, HealthStatusHealthy, report.Status)
	assert.Contains(t, report.Issues, "access token expired, refresh pending")
}

func TestCheckHealthStaleSyncAdvisory(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	old := time.Now().Add(-8 * 24 * time.Hour)
	integration.LastSyncAt = &old
	require.NoError(t, rig.store.Update(context.Background(), integration))

	report := rig.engine.CheckHealth(context.Background(), "tenant-1", integration.ID)
	// Advisory issue only: still healthy.
	assert.Equal(t, HealthStatusHealthy, report.Status)
	assert.True(t, report.IsHealthy)
	assert.Contains(t, report.Issues, "no successful sync in over 7 days")
}

func TestCheckHealthSyncError(t *testing.T) {
	rig := newTestRig(t)
	integration := rig.seedActive(t, "tenant-1")

	integration.SyncStatus = integrations.StatusError
	integration.LastError = "platform returned 500"
	require.NoError(t, rig.store.Update(context.Background(), integration))

	report := rig.engine.CheckHealth(context.Background(), "tenant-1", integration.ID)
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
	assert.Contains(t, report.Issues, "last sync failed: platform returned 500")
}

// failingStore makes GetByID blow up for one id, simulating a backend fault
// during a bulk sweep.
type failingStore struct {
	integrations.Store
	failID string
}

func (s *failingStore) GetByID(ctx context.Context, id string) (*integrations.Integration, error) {
	if id == s.failID {
		return nil, fmt.Errorf("connection reset by peer")
	}
	return s.Store.GetByID(ctx, id)
}

func TestCheckAllHealthIsolatesFailures(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	var ids []string
	for _, p := range []providers.Provider{
		providers.GoogleAds, providers.MetaAds, providers.LinkedInAds, providers.GoogleAnalytics,
	} {
		integration := &integrations.Integration{
			TenantID:          "tenant-1",
			Provider:          p,
			AccessTokenCipher: "cipher",
			IsActive:          true,
			SyncStatus:        integrations.StatusIdle,
		}
		require.NoError(t, rig.store.Upsert(ctx, integration))
		ids = append(ids, integration.ID)
	}
	// A different tenant's integration stays out of the sweep.
	rig.seedActive(t, "tenant-2")

	rig.engine.store = &failingStore{Store: rig.store, failID: ids[2]}

	reports, err := rig.engine.CheckAllHealth(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, reports, 4)

	var errored, normal int
	for _, report := range reports {
		if report.Status == HealthStatusError {
			errored++
			assert.Equal(t, ids[2], report.IntegrationID)
			assert.Contains(t, report.Issues[0], "health evaluation failed")
		} else {
			normal++
		}
	}
	assert.Equal(t, 1, errored)
	assert.Equal(t, 3, normal)
}
