package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"integration-hub/internal/common/errors"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.TokenRefreshError("upstream 503", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnTerminalError(t *testing.T) {
	calls := 0
	terminal := errors.RefreshTokenInvalidError("google_ads")
	err := RetryWithBackoff(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return terminal
	})

	assert.Equal(t, terminal, err)
	assert.Equal(t, 1, calls, "terminal errors must not be retried")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return errors.TimeoutError("code exchange")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, fastRetryConfig(3), func() error {
		return errors.TimeoutError("code exchange")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGenerateRandomHexLength(t *testing.T) {
	assert.Len(t, GenerateRandomHex(16), 32)
	assert.NotEqual(t, GenerateRandomHex(16), GenerateRandomHex(16))
}
