// Package syncer runs data pulls for active integrations and evaluates
// their health. Sync work is serialized per integration through an atomic
// status swap on the store; losing callers get AlreadySyncing instead of a
// duplicate pull.
package syncer

import (
	"context"
	"time"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/logging"
	"integration-hub/internal/crypto"
	"integration-hub/internal/integrations"
	"integration-hub/internal/oauth"
)

const (
	// refreshWindow triggers a proactive token refresh before a pull.
	refreshWindow = 5 * time.Minute
	// staleSyncAge is how old a syncing status must be before another
	// caller may assume the holder died and take over.
	staleSyncAge = 15 * time.Minute
)

// Puller performs the actual platform data pull. The analytics ingestion
// side implements it; the engine only cares whether it succeeded.
type Puller interface {
	Pull(ctx context.Context, integration *integrations.Integration, accessToken string) error
}

// PullerFunc adapts a function to the Puller interface.
type PullerFunc func(ctx context.Context, integration *integrations.Integration, accessToken string) error

func (f PullerFunc) Pull(ctx context.Context, integration *integrations.Integration, accessToken string) error {
	return f(ctx, integration, accessToken)
}

// Engine coordinates token refresh and data pulls per integration.
type Engine struct {
	store        integrations.Store
	orchestrator *oauth.Orchestrator
	cipher       *crypto.TokenCipher
	puller       Puller
	logger       logging.Logger
	nowFunc      func() time.Time
}

func NewEngine(
	store integrations.Store,
	orchestrator *oauth.Orchestrator,
	cipher *crypto.TokenCipher,
	puller Puller,
	logger logging.Logger,
) *Engine {
	return &Engine{
		store:        store,
		orchestrator: orchestrator,
		cipher:       cipher,
		puller:       puller,
		logger:       logger,
		nowFunc:      time.Now,
	}
}

// Sync refreshes credentials if they are about to expire, then runs the data
// pull. Exactly one Sync per integration runs at a time; a concurrent caller
// receives AlreadySyncing. A pull failure records Error without losing the
// previous successful sync timestamp.
func (e *Engine) Sync(ctx context.Context, tenantID, integrationID string) error {
	integration, err := e.store.GetByID(ctx, integrationID)
	if err != nil {
		return err
	}
	if integration.TenantID != tenantID {
		return errors.NotFoundError("integration not found")
	}

	if !integration.IsActive {
		return errors.InactiveError(integrationID)
	}

	if err := e.claimSync(ctx, integration); err != nil {
		return err
	}

	// Reload under the claim: the record may have changed while unclaimed.
	integration, err = e.store.GetByID(ctx, integrationID)
	if err != nil {
		return err
	}

	if integration.TokenExpiringWithin(e.nowFunc(), refreshWindow) {
		if err := e.refreshBeforePull(ctx, integration); err != nil {
			return err
		}
		integration, err = e.store.GetByID(ctx, integrationID)
		if err != nil {
			return err
		}
	}

	accessToken, err := e.cipher.Decrypt(integration.AccessTokenCipher)
	if err != nil {
		e.finishSync(ctx, integration, err)
		return err
	}

	if err := e.puller.Pull(ctx, integration, accessToken); err != nil {
		e.finishSync(ctx, integration, err)
		return errors.InternalError("data pull failed", err).WithContext("integration_id", integrationID)
	}

	e.finishSync(ctx, integration, nil)
	return nil
}

// claimSync atomically moves the integration into Syncing. Idle and Error
// are legal starting points; an existing Syncing status may be taken over
// only once it is stale enough to be a leftover of a dead run, and a
// pending_auth status whose blob has expired is reclaimed first.
func (e *Engine) claimSync(ctx context.Context, integration *integrations.Integration) error {
	for _, from := range []integrations.SyncStatus{integrations.StatusIdle, integrations.StatusError} {
		swapped, err := e.store.CompareAndSwapStatus(ctx, integration.ID, from, integrations.StatusSyncing)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}

	won, err := e.store.TakeOverStaleSync(ctx, integration.ID, staleSyncAge)
	if err != nil {
		return err
	}
	if won {
		e.logger.Warn("taking over stale sync",
			logging.Field{Key: "integration_id", Value: integration.ID},
			logging.Field{Key: "provider", Value: integration.Provider.String()},
		)
		return nil
	}

	reclaimed, err := e.reclaimAbandonedFlow(ctx, integration.ID)
	if err != nil {
		return err
	}
	if reclaimed {
		swapped, err := e.store.CompareAndSwapStatus(ctx, integration.ID, integrations.StatusIdle, integrations.StatusSyncing)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}

	return errors.AlreadySyncingError(integration.ID)
}

// reclaimAbandonedFlow frees an active integration stuck in pending_auth
// because a re-authorization was started and never completed. Once the
// pending blob is past its expiry no callback can claim it anymore, so the
// record returns to idle with the blob cleared.
func (e *Engine) reclaimAbandonedFlow(ctx context.Context, id string) (bool, error) {
	integration, err := e.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if integration.SyncStatus != integrations.StatusPendingAuth || !integration.IsActive {
		return false, nil
	}
	if integration.PendingState == nil || !integration.PendingState.Expired(e.nowFunc()) {
		return false, nil
	}

	integration.PendingState = nil
	integration.SyncStatus = integrations.StatusIdle
	integration.LastError = ""
	integration.StatusChangedAt = e.nowFunc()
	if err := e.store.Update(ctx, integration); err != nil {
		return false, err
	}

	e.logger.Warn("reclaimed abandoned authorization flow",
		logging.Field{Key: "integration_id", Value: integration.ID},
		logging.Field{Key: "provider", Value: integration.Provider.String()},
	)
	return true, nil
}

// refreshBeforePull runs the proactive refresh. A terminal rejection leaves
// the record in ReauthRequired (written by the orchestrator) and
// short-circuits the pull; a transient failure releases the claim as Error.
func (e *Engine) refreshBeforePull(ctx context.Context, integration *integrations.Integration) error {
	if !integration.HasRefreshToken() {
		// Nothing to refresh with. The pull may still succeed if the token
		// outlives its declared expiry; health reporting flags the risk.
		return nil
	}

	err := e.orchestrator.RefreshTokens(ctx, integration.TenantID, integration.ID)
	if err == nil {
		return nil
	}

	if errors.IsType(err, errors.ErrTypeRefreshTokenInvalid) {
		e.logger.Warn("sync short-circuited, re-authentication required",
			logging.Field{Key: "integration_id", Value: integration.ID},
			logging.Field{Key: "provider", Value: integration.Provider.String()},
		)
		return err
	}

	e.finishSync(ctx, integration, err)
	return err
}

// finishSync releases the claim: back to Idle on success with a fresh
// lastSyncAt, or to Error with the failure message and lastSyncAt untouched.
func (e *Engine) finishSync(ctx context.Context, integration *integrations.Integration, syncErr error) {
	now := e.nowFunc()

	current, err := e.store.GetByID(ctx, integration.ID)
	if err != nil {
		e.logger.Error("failed to load integration after sync", err,
			logging.Field{Key: "integration_id", Value: integration.ID},
		)
		return
	}

	if syncErr == nil {
		current.SyncStatus = integrations.StatusIdle
		current.LastError = ""
		current.LastSyncAt = &now
	} else {
		current.SyncStatus = integrations.StatusError
		current.LastError = syncErr.Error()
	}
	current.StatusChangedAt = now

	if err := e.store.Update(ctx, current); err != nil {
		e.logger.Error("failed to record sync outcome", err,
			logging.Field{Key: "integration_id", Value: integration.ID},
		)
	}
}
