package app

import (
	"integration-hub/internal/common/logging"
	"integration-hub/internal/redis"
)

// initializeRedis connects to Redis when REDIS_ENABLED is set. The guard
// falls back to in-process counters without it.
func (app *App) initializeRedis() error {
	if !app.Config.RedisEnabled {
		app.Logger.Info("Redis disabled, using in-process guard state")
		return nil
	}

	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDBNumber(),
		PoolSize: app.Config.RedisPoolSizeNumber(),
	})
	if err != nil {
		return err
	}

	app.RedisClient = client
	app.Logger.Info("Redis connected",
		logging.Field{Key: "address", Value: app.Config.RedisAddress})
	return nil
}
