package app

import (
	"integration-hub/internal/guard"
)

// initializeGuard builds the request guard. Counters live in Redis when a
// client is available so blocks survive restarts and cover every replica.
func (app *App) initializeGuard() {
	var store guard.Store
	if app.RedisClient != nil {
		store = guard.NewRedisStore(app.RedisClient)
	} else {
		store = guard.NewMemoryStore()
	}

	app.Guard = guard.New(store, guard.DefaultRules(), app.Logger)
}
