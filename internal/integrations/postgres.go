package integrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/utils"
)

// PostgresStore persists integrations in PostgreSQL via the pgx stdlib
// driver. SQL uses $n placeholders; everything else mirrors the SQLite
// backend.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	if connectionString == "" {
		return nil, errors.ConfigError("postgres connection string is required")
	}

	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS integrations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			access_token_cipher TEXT NOT NULL DEFAULT '',
			refresh_token_cipher TEXT NOT NULL DEFAULT '',
			token_expires_at TIMESTAMPTZ,
			account_id TEXT NOT NULL DEFAULT '',
			account_name TEXT NOT NULL DEFAULT '',
			scopes JSONB NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			sync_status TEXT NOT NULL DEFAULT 'idle',
			last_error TEXT NOT NULL DEFAULT '',
			last_sync_at TIMESTAMPTZ,
			pending_state JSONB,
			status_changed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE(tenant_id, provider)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_integrations_tenant ON integrations(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_integrations_active ON integrations(is_active)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = $1`
	return scanIntegration(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) GetByTenantAndProvider(ctx context.Context, tenantID, provider string) (*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE tenant_id = $1 AND provider = $2`
	return scanIntegration(s.db.QueryRowContext(ctx, query, tenantID, provider))
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE tenant_id = $1 ORDER BY created_at DESC`
	return s.queryIntegrations(ctx, query, tenantID)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE is_active ORDER BY created_at DESC`
	return s.queryIntegrations(ctx, query)
}

func (s *PostgresStore) queryIntegrations(ctx context.Context, query string, args ...interface{}) ([]*Integration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}
	defer rows.Close()

	var result []*Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, integration)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, integration *Integration) error {
	now := time.Now().UTC()
	if integration.ID == "" {
		integration.ID = utils.GenerateID()
	}
	integration.CreatedAt = now
	integration.UpdatedAt = now

	scopes, pending, err := encodeJSONColumns(integration)
	if err != nil {
		return err
	}

	query := `INSERT INTO integrations (` + integrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (tenant_id, provider) DO UPDATE SET
			access_token_cipher = EXCLUDED.access_token_cipher,
			refresh_token_cipher = EXCLUDED.refresh_token_cipher,
			token_expires_at = EXCLUDED.token_expires_at,
			account_id = EXCLUDED.account_id,
			account_name = EXCLUDED.account_name,
			scopes = EXCLUDED.scopes,
			is_active = EXCLUDED.is_active,
			sync_status = EXCLUDED.sync_status,
			last_error = EXCLUDED.last_error,
			last_sync_at = EXCLUDED.last_sync_at,
			pending_state = EXCLUDED.pending_state,
			status_changed_at = EXCLUDED.status_changed_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	err = s.db.QueryRowContext(ctx, query,
		integration.ID, integration.TenantID, string(integration.Provider),
		integration.AccessTokenCipher, integration.RefreshTokenCipher,
		nullTime(integration.TokenExpiresAt), integration.AccountID, integration.AccountName,
		scopes, integration.IsActive, string(integration.SyncStatus),
		integration.LastError, nullTime(integration.LastSyncAt), pending,
		integration.StatusChangedAt, integration.CreatedAt, integration.UpdatedAt).
		Scan(&integration.ID, &integration.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, integration *Integration) error {
	integration.UpdatedAt = time.Now().UTC()

	scopes, pending, err := encodeJSONColumns(integration)
	if err != nil {
		return err
	}

	query := `UPDATE integrations SET
			access_token_cipher = $1, refresh_token_cipher = $2, token_expires_at = $3,
			account_id = $4, account_name = $5, scopes = $6, is_active = $7,
			sync_status = $8, last_error = $9, last_sync_at = $10, pending_state = $11,
			status_changed_at = $12, updated_at = $13
		WHERE id = $14`

	result, err := s.db.ExecContext(ctx, query,
		integration.AccessTokenCipher, integration.RefreshTokenCipher,
		nullTime(integration.TokenExpiresAt), integration.AccountID, integration.AccountName,
		scopes, integration.IsActive, string(integration.SyncStatus),
		integration.LastError, nullTime(integration.LastSyncAt), pending,
		integration.StatusChangedAt, integration.UpdatedAt, integration.ID)
	if err != nil {
		return fmt.Errorf("failed to update integration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return errors.NotFoundError("integration not found")
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return errors.NotFoundError("integration not found")
	}
	return nil
}

func (s *PostgresStore) CompareAndSwapStatus(ctx context.Context, id string, from, to SyncStatus) (bool, error) {
	now := time.Now().UTC()
	query := `UPDATE integrations
		SET sync_status = $1, status_changed_at = $2, updated_at = $2
		WHERE id = $3 AND sync_status = $4`

	result, err := s.db.ExecContext(ctx, query, string(to), now, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to swap sync status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) TakeOverStaleSync(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	now := time.Now().UTC()
	query := `UPDATE integrations
		SET status_changed_at = $1, updated_at = $1
		WHERE id = $2 AND sync_status = $3 AND status_changed_at <= $4`

	result, err := s.db.ExecContext(ctx, query, now, id, string(StatusSyncing), now.Add(-maxAge))
	if err != nil {
		return false, fmt.Errorf("failed to take over stale sync: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
