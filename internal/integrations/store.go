package integrations

import (
	"context"
	"time"
)

// Store is the persistence contract for integration records. Implementations
// must make CompareAndSwapStatus atomic: it is the lock that serializes sync
// work per integration.
type Store interface {
	// GetByID returns the integration or a NotFound error.
	GetByID(ctx context.Context, id string) (*Integration, error)

	// GetByTenantAndProvider returns the single integration for the pair or
	// a NotFound error.
	GetByTenantAndProvider(ctx context.Context, tenantID, provider string) (*Integration, error)

	// ListByTenant returns all integrations for a tenant, newest first.
	ListByTenant(ctx context.Context, tenantID string) ([]*Integration, error)

	// ListActive returns every active integration across tenants. The sync
	// scheduler walks this set.
	ListActive(ctx context.Context) ([]*Integration, error)

	// Upsert inserts the record, or updates the existing row for the same
	// (tenant, provider) pair. On conflict the existing ID and CreatedAt are
	// preserved and written back into the passed record.
	Upsert(ctx context.Context, integration *Integration) error

	// Update persists all mutable fields of an existing record.
	Update(ctx context.Context, integration *Integration) error

	// Delete removes the record. Deleting a missing ID returns NotFound.
	Delete(ctx context.Context, id string) error

	// CompareAndSwapStatus transitions SyncStatus from "from" to "to" only if
	// the current value still equals "from". It reports whether the swap
	// happened. A successful swap also stamps StatusChangedAt.
	CompareAndSwapStatus(ctx context.Context, id string, from, to SyncStatus) (bool, error)

	// TakeOverStaleSync claims a syncing integration whose StatusChangedAt is
	// older than maxAge, restamping it. It reports whether the claim won.
	TakeOverStaleSync(ctx context.Context, id string, maxAge time.Duration) (bool, error)

	// Health verifies the backing store is reachable.
	Health(ctx context.Context) error

	Close() error
}
