package guard

import (
	"context"
	"time"
)

// Entry is the per-key counter record. BlockedUntil, while set and in the
// future, overrides the normal window check.
type Entry struct {
	Count        int        `json:"count"`
	FailureCount int        `json:"failure_count"`
	ResetTime    time.Time  `json:"reset_time"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// Blocked reports whether the key is serving a hard cooldown.
func (e *Entry) Blocked(now time.Time) bool {
	return e.BlockedUntil != nil && now.Before(*e.BlockedUntil)
}

// Store provides atomic per-key read-modify-write over guard entries. The
// mutation function must be pure: distributed implementations may re-run it
// when an optimistic transaction conflicts.
type Store interface {
	// Mutate loads the entry for key (zero-valued if absent), applies fn and
	// persists the result, all atomically with respect to other callers of
	// the same key. TTL hints how long the entry stays relevant.
	Mutate(ctx context.Context, key string, ttl time.Duration, fn func(*Entry)) (*Entry, error)

	Close() error
}
