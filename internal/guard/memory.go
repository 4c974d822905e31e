package guard

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MemoryStore keeps guard entries in an in-process map. Suitable for
// single-instance deployments; multi-instance setups share a RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	nowFunc func() time.Time
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) Mutate(ctx context.Context, key string, ttl time.Duration, fn func(*Entry)) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()

	stored, ok := s.entries[key]
	if !ok || now.After(stored.expiresAt) {
		stored = &memoryEntry{}
	}
	fn(&stored.entry)
	stored.expiresAt = now.Add(ttl)
	s.entries[key] = stored

	// Opportunistic cleanup, roughly once per hundred mutations. Entries
	// mid-use are never expired: every Mutate pushes expiresAt forward.
	if rand.Intn(100) == 0 {
		s.cleanupLocked(now)
	}

	result := stored.entry
	return &result, nil
}

func (s *MemoryStore) cleanupLocked(now time.Time) {
	for key, stored := range s.entries {
		if now.After(stored.expiresAt) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) Close() error {
	return nil
}
