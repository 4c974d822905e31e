package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"integration-hub/internal/common/errors"
)

// RetryConfig holds configuration for retry operations with exponential backoff
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries (caps exponential growth)
	MaxDelay time.Duration

	// BackoffFactor is the multiplier for exponential backoff
	BackoffFactor float64

	// JitterFactor adds randomness to delays (0.0-1.0)
	JitterFactor float64

	// RetryableErrors determines which errors should trigger a retry.
	// If nil, retriability follows errors.IsRetriable.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the retry policy used for provider transport
// failures: a small bounded attempt count with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.1,
		RetryableErrors: errors.IsRetriable,
	}
}

// RetryWithBackoff executes a function with exponential backoff retry strategy.
// Non-retriable errors are returned immediately. Context cancellation aborts
// the wait between attempts.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err

			retryable := errors.IsRetriable
			if config.RetryableErrors != nil {
				retryable = config.RetryableErrors
			}
			if !retryable(err) {
				return err
			}

			if attempt == config.MaxAttempts {
				break
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
			if config.JitterFactor > 0 {
				jitter := time.Duration(float64(delay) * config.JitterFactor)
				delay = delay + time.Duration(randomInt64n(int64(jitter)))
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// randomInt64n returns a cryptographically secure random int64 in [0, n)
func randomInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}
