// Package config loads application configuration from environment variables
// with sensible defaults and validates it before startup.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Optional log file path (default: stdout)
//
// Storage Configuration:
//   - STORAGE_BACKEND: "memory", "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./integration_hub.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration (request guard state):
//   - REDIS_ENABLED: Use Redis for guard counters (default: false)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Security Configuration:
//   - JWT_SECRET: JWT signing secret (required, minimum 32 characters)
//   - CREDENTIAL_ENCRYPTION_KEY: Key for encrypting stored OAuth tokens (required)
//   - OAUTH_STATE_SECRET: Key for signing CSRF state tokens (defaults to JWT_SECRET)
//
// OAuth Provider Configuration:
//   - OAUTH_REDIRECT_BASE_URL: Public base URL callbacks are built from (required)
//   - GOOGLE_ADS_CLIENT_ID / GOOGLE_ADS_CLIENT_SECRET / GOOGLE_ADS_SCOPES
//   - META_ADS_CLIENT_ID / META_ADS_CLIENT_SECRET / META_ADS_SCOPES
//   - LINKEDIN_ADS_CLIENT_ID / LINKEDIN_ADS_CLIENT_SECRET / LINKEDIN_ADS_SCOPES
//   - GOOGLE_ANALYTICS_CLIENT_ID / GOOGLE_ANALYTICS_CLIENT_SECRET / GOOGLE_ANALYTICS_SCOPES
//
// Sync Configuration:
//   - SYNC_SCHEDULE: Cron spec for the background sync sweep (default: "@every 1h",
//     empty string disables the scheduler)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ProviderCredentials holds the OAuth client credentials for one provider.
// A provider with an empty ClientID is treated as not configured.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config holds all configuration values for the integration hub.
type Config struct {
	// Application settings
	Port     string
	LogLevel string
	LogFile  string

	// Storage configuration
	StorageBackend   string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis configuration
	RedisEnabled  bool
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Security configuration
	JWTSecret               string
	CredentialEncryptionKey string
	OAuthStateSecret        string

	// OAuth provider configuration
	OAuthRedirectBaseURL string
	GoogleAds            ProviderCredentials
	MetaAds              ProviderCredentials
	LinkedInAds          ProviderCredentials
	GoogleAnalytics      ProviderCredentials

	// Sync configuration
	SyncSchedule string
}

// Load creates a Config with values from environment variables, falling back
// to defaults. Call Validate before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		StorageBackend:   getEnv("STORAGE_BACKEND", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./integration_hub.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "integration_hub"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		JWTSecret:               getEnv("JWT_SECRET", ""),
		CredentialEncryptionKey: getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),
		OAuthStateSecret:        getEnv("OAUTH_STATE_SECRET", ""),

		OAuthRedirectBaseURL: getEnv("OAUTH_REDIRECT_BASE_URL", ""),
		GoogleAds:            loadProviderCredentials("GOOGLE_ADS", "https://www.googleapis.com/auth/adwords"),
		MetaAds:              loadProviderCredentials("META_ADS", "ads_read,ads_management"),
		LinkedInAds:          loadProviderCredentials("LINKEDIN_ADS", "r_ads,rw_ads"),
		GoogleAnalytics:      loadProviderCredentials("GOOGLE_ANALYTICS", "https://www.googleapis.com/auth/analytics.readonly"),

		SyncSchedule: getEnv("SYNC_SCHEDULE", "@every 1h"),
	}
}

func loadProviderCredentials(prefix, defaultScopes string) ProviderCredentials {
	return ProviderCredentials{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		Scopes:       splitScopes(getEnv(prefix+"_SCOPES", defaultScopes)),
	}
}

func splitScopes(raw string) []string {
	var scopes []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, formats and cross-field dependencies.
// The application must not start if Validate returns an error.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long for security")
	}

	if c.CredentialEncryptionKey == "" {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY environment variable is required")
	}
	if len(c.CredentialEncryptionKey) < 32 {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be at least 32 characters long")
	}

	if c.OAuthRedirectBaseURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_BASE_URL environment variable is required")
	}
	if !strings.HasPrefix(c.OAuthRedirectBaseURL, "http://") && !strings.HasPrefix(c.OAuthRedirectBaseURL, "https://") {
		return fmt.Errorf("OAUTH_REDIRECT_BASE_URL must be an absolute http(s) URL")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.StorageBackend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'memory', 'sqlite' or 'postgres'")
	}

	if c.StorageBackend == "postgres" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisEnabled {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if size, err := strconv.Atoi(c.RedisPoolSize); err != nil || size < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	return nil
}

// StateSecret returns the key used to sign OAuth state tokens. It falls back
// to the JWT secret when OAUTH_STATE_SECRET is not set.
func (c *Config) StateSecret() string {
	if c.OAuthStateSecret != "" {
		return c.OAuthStateSecret
	}
	return c.JWTSecret
}

// PostgresConnString assembles the connection string for the pgx driver.
func (c *Config) PostgresConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDB, c.PostgresSSLMode)
}

// RedisDBNumber returns the parsed Redis database index.
func (c *Config) RedisDBNumber() int {
	db, err := strconv.Atoi(c.RedisDB)
	if err != nil {
		return 0
	}
	return db
}

// RedisPoolSizeNumber returns the parsed Redis pool size.
func (c *Config) RedisPoolSizeNumber() int {
	size, err := strconv.Atoi(c.RedisPoolSize)
	if err != nil {
		return 10
	}
	return size
}
