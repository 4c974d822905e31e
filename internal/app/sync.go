package app

import (
	"context"

	"integration-hub/internal/common/logging"
	"integration-hub/internal/integrations"
	"integration-hub/internal/syncer"
)

// initializeSync builds the sync engine and the background sweep scheduler.
func (app *App) initializeSync() error {
	app.Engine = syncer.NewEngine(app.Store, app.Orchestrator, app.Cipher, app.probePuller(), app.Logger)

	scheduler, err := syncer.NewScheduler(app.Engine, app.Store, app.Config.SyncSchedule, app.Logger)
	if err != nil {
		return err
	}
	app.Scheduler = scheduler

	return nil
}

// probePuller stands in for the analytics ingestion pipeline, which consumes
// this service's credentials out of process. It exercises the token against
// the provider's profile endpoint so a sync still detects revoked access.
func (app *App) probePuller() syncer.Puller {
	return syncer.PullerFunc(func(ctx context.Context, integration *integrations.Integration, accessToken string) error {
		adapter, err := app.Registry.Get(integration.Provider)
		if err != nil {
			return err
		}

		info, err := adapter.FetchAccountInfo(ctx, accessToken)
		if err != nil {
			return err
		}

		app.Logger.Info("Sync probe succeeded",
			logging.Field{Key: "integration_id", Value: integration.ID},
			logging.Field{Key: "provider", Value: integration.Provider.String()},
			logging.Field{Key: "account_id", Value: info.AccountID})
		return nil
	})
}
