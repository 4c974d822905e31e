package syncer

import (
	"context"
	"fmt"
	"time"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/integrations"
)

// staleDataAge is the advisory threshold for an aging lastSyncAt.
const staleDataAge = 7 * 24 * time.Hour

// Health statuses reported per integration.
const (
	HealthStatusHealthy   = "HEALTHY"
	HealthStatusUnhealthy = "UNHEALTHY"
	HealthStatusError     = "ERROR"
)

// HealthReport is the diagnostic result for one integration. A bulk sweep
// yields one report per integration regardless of individual failures.
type HealthReport struct {
	IntegrationID string             `json:"integration_id"`
	Provider      string             `json:"provider,omitempty"`
	Status        string             `json:"status"`
	IsHealthy     bool               `json:"is_healthy"`
	State         integrations.State `json:"state,omitempty"`
	Issues        []string           `json:"issues,omitempty"`
	LastSyncAt    *time.Time         `json:"last_sync_at,omitempty"`
}

// CheckHealth evaluates one integration without mutating anything. A missing
// integration is reported as an ERROR-status result, not an error return, so
// bulk sweeps stay uniform.
func (e *Engine) CheckHealth(ctx context.Context, tenantID, integrationID string) *HealthReport {
	integration, err := e.store.GetByID(ctx, integrationID)
	if err != nil {
		issue := "integration not found"
		if !errors.IsType(err, errors.ErrTypeNotFound) {
			issue = "health evaluation failed: " + err.Error()
		}
		return &HealthReport{
			IntegrationID: integrationID,
			Status:        HealthStatusError,
			Issues:        []string{issue},
		}
	}
	if integration.TenantID != tenantID {
		return &HealthReport{
			IntegrationID: integrationID,
			Status:        HealthStatusError,
			Issues:        []string{"integration not found"},
		}
	}
	return e.evaluate(integration)
}

// CheckAllHealth evaluates every integration of a tenant. One integration's
// failure degrades to an ERROR entry instead of aborting the batch.
func (e *Engine) CheckAllHealth(ctx context.Context, tenantID string) ([]*HealthReport, error) {
	all, err := e.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	reports := make([]*HealthReport, 0, len(all))
	for _, integration := range all {
		reports = append(reports, e.checkIsolated(ctx, tenantID, integration.ID))
	}
	return reports, nil
}

// checkIsolated shields the batch from one entry's panic or store failure.
func (e *Engine) checkIsolated(ctx context.Context, tenantID, integrationID string) (report *HealthReport) {
	defer func() {
		if r := recover(); r != nil {
			report = &HealthReport{
				IntegrationID: integrationID,
				Status:        HealthStatusError,
				Issues:        []string{fmt.Sprintf("health evaluation failed: %v", r)},
			}
		}
	}()
	return e.CheckHealth(ctx, tenantID, integrationID)
}

func (e *Engine) evaluate(integration *integrations.Integration) *HealthReport {
	now := e.nowFunc()
	state := integration.State()

	report := &HealthReport{
		IntegrationID: integration.ID,
		Provider:      integration.Provider.String(),
		State:         state,
		LastSyncAt:    integration.LastSyncAt,
	}

	unhealthy := false

	switch state {
	case integrations.StateReauthRequired:
		unhealthy = true
		report.Issues = append(report.Issues, "re-authentication required")
	case integrations.StateDisconnected:
		unhealthy = true
		report.Issues = append(report.Issues, "integration is not connected")
	case integrations.StatePendingAuth:
		unhealthy = true
		report.Issues = append(report.Issues, "authorization flow in progress")
	case integrations.StateError:
		unhealthy = true
		issue := "last sync failed"
		if integration.LastError != "" {
			issue = "last sync failed: " + integration.LastError
		}
		report.Issues = append(report.Issues, issue)
	}

	if integration.IsActive {
		if integration.AccessTokenCipher == "" {
			unhealthy = true
			report.Issues = append(report.Issues, "no access token stored")
		}
		if integration.TokenExpiresAt != nil && now.After(*integration.TokenExpiresAt) {
			if integration.HasRefreshToken() {
				report.Issues = append(report.Issues, "access token expired, refresh pending")
			} else {
				unhealthy = true
				report.Issues = append(report.Issues, "access token expired with no refresh token")
			}
		}

		// Advisory only: old data alone does not make the integration
		// unhealthy.
		if integration.LastSyncAt != nil && now.Sub(*integration.LastSyncAt) > staleDataAge {
			report.Issues = append(report.Issues, "no successful sync in over 7 days")
		}
	}

	if unhealthy {
		report.Status = HealthStatusUnhealthy
	} else {
		report.Status = HealthStatusHealthy
		report.IsHealthy = true
	}
	return report
}

