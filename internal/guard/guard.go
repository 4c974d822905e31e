// Package guard implements the request guard protecting externally triggered
// operations: fixed-window rate limiting per (operation class, client key)
// with escalating hard blocks for repeatedly failing keys.
package guard

import (
	"context"
	"time"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/logging"
)

const (
	// suspiciousThreshold marks a key for security logging.
	suspiciousThreshold = 3
	// blockThreshold trips the hard block.
	blockThreshold = 10
	// blockDuration is the hard-block cooldown. It outlives window resets.
	blockDuration = time.Hour
)

// Rule configures one operation class.
type Rule struct {
	MaxRequests int
	Window      time.Duration
	// SkipSuccessful makes only failed attempts count against the window, so
	// repeated legitimate use never trips the limiter.
	SkipSuccessful bool
}

// DefaultRules covers the operation classes the HTTP surface exposes.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"auth":    {MaxRequests: 5, Window: 15 * time.Minute, SkipSuccessful: true},
		"connect": {MaxRequests: 3, Window: time.Hour, SkipSuccessful: false},
		"api":     {MaxRequests: 100, Window: time.Minute, SkipSuccessful: true},
	}
}

// Decision is the outcome of one CheckAndRecord call.
type Decision struct {
	Allowed    bool
	Reason     errors.ErrorType
	RetryAfter time.Duration
	Remaining  int
}

// Err converts a denial into the matching typed error. Allowed decisions
// return nil.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == errors.ErrTypeIPBlocked {
		return errors.IPBlockedError().WithContext("retry_after_seconds", int(d.RetryAfter.Seconds()))
	}
	return errors.RateLimitError("request").WithContext("retry_after_seconds", int(d.RetryAfter.Seconds()))
}

// Guard evaluates requests against per-class rules over a shared store.
type Guard struct {
	store   Store
	rules   map[string]Rule
	logger  logging.Logger
	nowFunc func() time.Time
}

func New(store Store, rules map[string]Rule, logger logging.Logger) *Guard {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Guard{
		store:   store,
		rules:   rules,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// CheckAndRecord counts one attempt for (class, key) and decides whether it
// may proceed. A hard block takes priority over the window check. Failed
// attempts raise the escalation counter; at blockThreshold the key is
// blocked for blockDuration regardless of window state.
func (g *Guard) CheckAndRecord(ctx context.Context, class, key string, isFailedAttempt bool) (*Decision, error) {
	rule, ok := g.rules[class]
	if !ok {
		return nil, errors.ConfigError("unknown guard operation class: " + class)
	}

	now := g.nowFunc()
	storeKey := class + ":" + key

	entry, err := g.store.Mutate(ctx, storeKey, rule.Window+blockDuration, func(e *Entry) {
		if e.ResetTime.IsZero() || now.After(e.ResetTime) {
			e.Count = 0
			e.ResetTime = now.Add(rule.Window)
		}
		if e.Blocked(now) {
			return
		}
		if isFailedAttempt || !rule.SkipSuccessful {
			e.Count++
		}
		if isFailedAttempt {
			e.FailureCount++
			if e.FailureCount >= blockThreshold {
				until := now.Add(blockDuration)
				e.BlockedUntil = &until
			}
		}
	})
	if err != nil {
		return nil, err
	}

	if entry.Blocked(now) {
		g.logger.Warn("client key hard-blocked",
			logging.SecurityEvent("ip_blocked"),
			logging.Field{Key: "operation_class", Value: class},
			logging.Field{Key: "client_key", Value: key},
			logging.Field{Key: "failure_count", Value: entry.FailureCount},
		)
		return &Decision{
			Allowed:    false,
			Reason:     errors.ErrTypeIPBlocked,
			RetryAfter: entry.BlockedUntil.Sub(now),
		}, nil
	}

	if isFailedAttempt && entry.FailureCount >= suspiciousThreshold {
		g.logger.Warn("suspicious failure pattern",
			logging.SecurityEvent("suspicious_activity"),
			logging.Field{Key: "operation_class", Value: class},
			logging.Field{Key: "client_key", Value: key},
			logging.Field{Key: "failure_count", Value: entry.FailureCount},
		)
	}

	if entry.Count > rule.MaxRequests {
		return &Decision{
			Allowed:    false,
			Reason:     errors.ErrTypeRateLimit,
			RetryAfter: entry.ResetTime.Sub(now),
		}, nil
	}

	remaining := rule.MaxRequests - entry.Count
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{Allowed: true, Remaining: remaining}, nil
}

// RecordFailure reports an attempt outcome after the fact, without consuming
// a second window slot for classes that count every request. The HTTP
// middleware calls it when a response turns out to be an error.
func (g *Guard) RecordFailure(ctx context.Context, class, key string) error {
	rule, ok := g.rules[class]
	if !ok {
		return errors.ConfigError("unknown guard operation class: " + class)
	}

	now := g.nowFunc()
	storeKey := class + ":" + key

	entry, err := g.store.Mutate(ctx, storeKey, rule.Window+blockDuration, func(e *Entry) {
		if e.ResetTime.IsZero() || now.After(e.ResetTime) {
			e.Count = 0
			e.ResetTime = now.Add(rule.Window)
		}
		if rule.SkipSuccessful {
			// The pre-request check skipped this attempt; count it now that
			// it is known to have failed.
			e.Count++
		}
		e.FailureCount++
		if e.FailureCount >= blockThreshold {
			until := now.Add(blockDuration)
			e.BlockedUntil = &until
		}
	})
	if err != nil {
		return err
	}

	if entry.FailureCount >= suspiciousThreshold {
		g.logger.Warn("suspicious failure pattern",
			logging.SecurityEvent("suspicious_activity"),
			logging.Field{Key: "operation_class", Value: class},
			logging.Field{Key: "client_key", Value: key},
			logging.Field{Key: "failure_count", Value: entry.FailureCount},
		)
	}
	return nil
}
