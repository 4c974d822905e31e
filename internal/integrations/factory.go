package integrations

import (
	"fmt"

	"integration-hub/internal/common/errors"
)

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	Backend            string // "memory", "sqlite" or "postgres"
	SQLitePath         string
	PostgresConnString string
}

// NewStore builds the configured backend.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(config.SQLitePath)
	case "postgres":
		return NewPostgresStore(config.PostgresConnString)
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown storage backend: %q", config.Backend))
	}
}
