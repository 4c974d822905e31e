package integrations

import (
	"context"
	"sort"
	"sync"
	"time"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/utils"
)

// MemoryStore keeps integrations in process memory. It backs tests and
// single-node development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Integration
	byPair  map[string]string // tenantID+"/"+provider -> id
	nowFunc func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Integration),
		byPair:  make(map[string]string),
		nowFunc: time.Now,
	}
}

func pairKey(tenantID, provider string) string {
	return tenantID + "/" + provider
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	integration, ok := s.byID[id]
	if !ok {
		return nil, errors.NotFoundError("integration not found")
	}
	return cloneIntegration(integration), nil
}

func (s *MemoryStore) GetByTenantAndProvider(ctx context.Context, tenantID, provider string) (*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[pairKey(tenantID, provider)]
	if !ok {
		return nil, errors.NotFoundError("integration not found")
	}
	return cloneIntegration(s.byID[id]), nil
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Integration
	for _, integration := range s.byID {
		if integration.TenantID == tenantID {
			result = append(result, cloneIntegration(integration))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Integration
	for _, integration := range s.byID {
		if integration.IsActive {
			result = append(result, cloneIntegration(integration))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, integration *Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	key := pairKey(integration.TenantID, string(integration.Provider))

	if existingID, ok := s.byPair[key]; ok {
		integration.ID = existingID
		integration.CreatedAt = s.byID[existingID].CreatedAt
	} else {
		if integration.ID == "" {
			integration.ID = utils.GenerateID()
		}
		integration.CreatedAt = now
		s.byPair[key] = integration.ID
	}
	integration.UpdatedAt = now
	s.byID[integration.ID] = cloneIntegration(integration)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, integration *Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[integration.ID]
	if !ok {
		return errors.NotFoundError("integration not found")
	}
	integration.CreatedAt = existing.CreatedAt
	integration.UpdatedAt = s.nowFunc()
	s.byID[integration.ID] = cloneIntegration(integration)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, ok := s.byID[id]
	if !ok {
		return errors.NotFoundError("integration not found")
	}
	delete(s.byPair, pairKey(integration.TenantID, string(integration.Provider)))
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) CompareAndSwapStatus(ctx context.Context, id string, from, to SyncStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, ok := s.byID[id]
	if !ok {
		return false, errors.NotFoundError("integration not found")
	}
	if integration.SyncStatus != from {
		return false, nil
	}
	now := s.nowFunc()
	integration.SyncStatus = to
	integration.StatusChangedAt = now
	integration.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) TakeOverStaleSync(ctx context.Context, id string, maxAge time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	integration, ok := s.byID[id]
	if !ok {
		return false, errors.NotFoundError("integration not found")
	}
	now := s.nowFunc()
	if integration.SyncStatus != StatusSyncing || now.Sub(integration.StatusChangedAt) < maxAge {
		return false, nil
	}
	integration.StatusChangedAt = now
	integration.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneIntegration(in *Integration) *Integration {
	out := *in
	if in.TokenExpiresAt != nil {
		t := *in.TokenExpiresAt
		out.TokenExpiresAt = &t
	}
	if in.LastSyncAt != nil {
		t := *in.LastSyncAt
		out.LastSyncAt = &t
	}
	if in.PendingState != nil {
		p := *in.PendingState
		out.PendingState = &p
	}
	if in.Scopes != nil {
		out.Scopes = append([]string(nil), in.Scopes...)
	}
	return &out
}
