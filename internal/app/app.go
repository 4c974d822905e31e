// Package app wires configuration, storage, OAuth and sync components
// together and runs the HTTP server.
package app

import (
	"integration-hub/internal/auth"
	"integration-hub/internal/common/logging"
	"integration-hub/internal/config"
	"integration-hub/internal/crypto"
	"integration-hub/internal/guard"
	"integration-hub/internal/integrations"
	"integration-hub/internal/oauth"
	"integration-hub/internal/oauthstate"
	"integration-hub/internal/providers"
	"integration-hub/internal/redis"
	"integration-hub/internal/syncer"
)

// App holds all the application dependencies
type App struct {
	Config       *config.Config
	Store        integrations.Store
	RedisClient  *redis.Client
	Guard        *guard.Guard
	Auth         *auth.Auth
	Cipher       *crypto.TokenCipher
	Issuer       *oauthstate.Issuer
	Registry     *providers.Registry
	Orchestrator *oauth.Orchestrator
	Engine       *syncer.Engine
	Scheduler    *syncer.Scheduler
	Logger       logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	// Initialize components in order of dependency
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis is optional, fall back to in-process guard counters
		app.Logger.Warn("Redis initialization failed, continuing without Redis",
			logging.Field{Key: "error", Value: err.Error()})
		app.RedisClient = nil
	}

	app.initializeGuard()

	if err := app.initializeOAuth(); err != nil {
		return nil, err
	}

	if err := app.initializeSync(); err != nil {
		return nil, err
	}

	return app, nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}
	if app.Store != nil {
		app.Store.Close()
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
