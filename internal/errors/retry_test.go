package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), nil,
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", NewTransientError(fmt.Errorf("connection refused"), "agent unreachable")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), nil, func(ctx context.Context) error {
		calls++
		return NewPermanentError(fmt.Errorf("agent returned 401"), "credentials rejected")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "a permanent error is never retried")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), nil, func(ctx context.Context) error {
		calls++
		return NewTransientError(fmt.Errorf("i/o timeout"), "slow agent")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 4, calls, "first attempt plus MaxAttempts retries")
}

func TestRetryHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetryConfig(), nil, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBackoffDelayDoubles(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	assert.Equal(t, time.Second, backoffDelay(0, config))
	assert.Equal(t, 2*time.Second, backoffDelay(1, config))
	assert.Equal(t, 4*time.Second, backoffDelay(2, config))
	assert.Equal(t, 30*time.Second, backoffDelay(10, config), "capped at MaxDelay")
}
