package integrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/utils"
	"integration-hub/internal/providers"
)

// SQLiteStore persists integrations in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(databasePath string) (*SQLiteStore, error) {
	if databasePath == "" {
		return nil, errors.ConfigError("sqlite database path is required")
	}

	db, err := sql.Open("sqlite3", databasePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS integrations (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			access_token_cipher TEXT NOT NULL DEFAULT '',
			refresh_token_cipher TEXT NOT NULL DEFAULT '',
			token_expires_at DATETIME,
			account_id TEXT NOT NULL DEFAULT '',
			account_name TEXT NOT NULL DEFAULT '',
			scopes TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT 0,
			sync_status TEXT NOT NULL DEFAULT 'idle',
			last_error TEXT NOT NULL DEFAULT '',
			last_sync_at DATETIME,
			pending_state TEXT,
			status_changed_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
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

const integrationColumns = `id, tenant_id, provider, access_token_cipher, refresh_token_cipher,
	token_expires_at, account_id, account_name, scopes, is_active, sync_status,
	last_error, last_sync_at, pending_state, status_changed_at, created_at, updated_at`

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = ?`
	return scanIntegration(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) GetByTenantAndProvider(ctx context.Context, tenantID, provider string) (*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE tenant_id = ? AND provider = ?`
	return scanIntegration(s.db.QueryRowContext(ctx, query, tenantID, provider))
}

func (s *SQLiteStore) ListByTenant(ctx context.Context, tenantID string) ([]*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE tenant_id = ? ORDER BY created_at DESC`
	return s.queryIntegrations(ctx, query, tenantID)
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]*Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE is_active = 1 ORDER BY created_at DESC`
	return s.queryIntegrations(ctx, query)
}

func (s *SQLiteStore) queryIntegrations(ctx context.Context, query string, args ...interface{}) ([]*Integration, error) {
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

func (s *SQLiteStore) Upsert(ctx context.Context, integration *Integration) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, provider) DO UPDATE SET
			access_token_cipher = excluded.access_token_cipher,
			refresh_token_cipher = excluded.refresh_token_cipher,
			token_expires_at = excluded.token_expires_at,
			account_id = excluded.account_id,
			account_name = excluded.account_name,
			scopes = excluded.scopes,
			is_active = excluded.is_active,
			sync_status = excluded.sync_status,
			last_error = excluded.last_error,
			last_sync_at = excluded.last_sync_at,
			pending_state = excluded.pending_state,
			status_changed_at = excluded.status_changed_at,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		integration.ID, integration.TenantID, string(integration.Provider),
		integration.AccessTokenCipher, integration.RefreshTokenCipher,
		nullTime(integration.TokenExpiresAt), integration.AccountID, integration.AccountName,
		scopes, integration.IsActive, string(integration.SyncStatus),
		integration.LastError, nullTime(integration.LastSyncAt), pending,
		integration.StatusChangedAt, integration.CreatedAt, integration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}

	// On conflict the stored row kept its original id and created_at; read
	// them back so the caller holds the canonical record.
	stored, err := s.GetByTenantAndProvider(ctx, integration.TenantID, string(integration.Provider))
	if err != nil {
		return err
	}
	integration.ID = stored.ID
	integration.CreatedAt = stored.CreatedAt
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, integration *Integration) error {
	integration.UpdatedAt = time.Now().UTC()

	scopes, pending, err := encodeJSONColumns(integration)
	if err != nil {
		return err
	}

	query := `UPDATE integrations SET
			access_token_cipher = ?, refresh_token_cipher = ?, token_expires_at = ?,
			account_id = ?, account_name = ?, scopes = ?, is_active = ?,
			sync_status = ?, last_error = ?, last_sync_at = ?, pending_state = ?,
			status_changed_at = ?, updated_at = ?
		WHERE id = ?`

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

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE id = ?`, id)
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

func (s *SQLiteStore) CompareAndSwapStatus(ctx context.Context, id string, from, to SyncStatus) (bool, error) {
	now := time.Now().UTC()
	query := `UPDATE integrations
		SET sync_status = ?, status_changed_at = ?, updated_at = ?
		WHERE id = ? AND sync_status = ?`

	result, err := s.db.ExecContext(ctx, query, string(to), now, now, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to swap sync status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteStore) TakeOverStaleSync(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	now := time.Now().UTC()
	query := `UPDATE integrations
		SET status_changed_at = ?, updated_at = ?
		WHERE id = ? AND sync_status = ? AND status_changed_at <= ?`

	result, err := s.db.ExecContext(ctx, query, now, now, id, string(StatusSyncing), now.Add(-maxAge))
	if err != nil {
		return false, fmt.Errorf("failed to take over stale sync: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntegration(row rowScanner) (*Integration, error) {
	var (
		integration    Integration
		provider       string
		syncStatus     string
		tokenExpiresAt sql.NullTime
		lastSyncAt     sql.NullTime
		scopes         string
		pending        sql.NullString
	)

	err := row.Scan(&integration.ID, &integration.TenantID, &provider,
		&integration.AccessTokenCipher, &integration.RefreshTokenCipher,
		&tokenExpiresAt, &integration.AccountID, &integration.AccountName,
		&scopes, &integration.IsActive, &syncStatus,
		&integration.LastError, &lastSyncAt, &pending,
		&integration.StatusChangedAt, &integration.CreatedAt, &integration.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundError("integration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}

	integration.Provider = providers.Provider(provider)
	integration.SyncStatus = SyncStatus(syncStatus)
	if tokenExpiresAt.Valid {
		t := tokenExpiresAt.Time
		integration.TokenExpiresAt = &t
	}
	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		integration.LastSyncAt = &t
	}
	if scopes != "" {
		if err := json.Unmarshal([]byte(scopes), &integration.Scopes); err != nil {
			return nil, fmt.Errorf("failed to decode scopes: %w", err)
		}
	}
	if pending.Valid && pending.String != "" {
		var p PendingState
		if err := json.Unmarshal([]byte(pending.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode pending state: %w", err)
		}
		integration.PendingState = &p
	}
	return &integration, nil
}

func encodeJSONColumns(integration *Integration) (scopes string, pending interface{}, err error) {
	scopeBytes, err := json.Marshal(integration.Scopes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode scopes: %w", err)
	}
	if integration.Scopes == nil {
		scopeBytes = []byte("[]")
	}

	if integration.PendingState == nil {
		return string(scopeBytes), nil, nil
	}
	pendingBytes, err := json.Marshal(integration.PendingState)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode pending state: %w", err)
	}
	return string(scopeBytes), string(pendingBytes), nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
