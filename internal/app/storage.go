package app

import (
	"fmt"

	"integration-hub/internal/common/logging"
	"integration-hub/internal/integrations"
)

// initializeStorage opens the integration store named by STORAGE_BACKEND.
func (app *App) initializeStorage() error {
	store, err := integrations.NewStore(integrations.StoreConfig{
		Backend:            app.Config.StorageBackend,
		SQLitePath:         app.Config.DatabasePath,
		PostgresConnString: app.Config.PostgresConnString(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.Store = store
	app.Logger.Info("Storage initialized",
		logging.Field{Key: "backend", Value: app.Config.StorageBackend})
	return nil
}
