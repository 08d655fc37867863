package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"aegis/internal/logging"
)

// RetryConfig controls the exponential backoff schedule.
type RetryConfig struct {
	MaxAttempts  int           // retries after the first attempt (default 3)
	BaseDelay    time.Duration // first backoff step (default 1s)
	MaxDelay     time.Duration // backoff ceiling (default 30s)
	JitterFactor float64       // randomization factor, 0.25 means ±25%
}

// DefaultRetryConfig returns the standard schedule: up to 4 total attempts
// with 1s/2s/4s backoff, capped at 30s, ±25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// Retry runs fn with exponential backoff. Only transient errors are retried;
// a permanent error returns immediately. Context cancellation aborts both
// pending attempts and backoff sleeps.
func Retry(ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, config, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult is Retry for functions that return a value.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, logger logging.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	logger = logging.OrNop(logger)

	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("succeeded on attempt %d/%d", attempt+1, config.MaxAttempts+1)
			}
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := backoffDelay(attempt, config)
		logger.Debug("attempt %d/%d failed (%v), retrying in %v",
			attempt+1, config.MaxAttempts+1, err, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func backoffDelay(attempt int, config RetryConfig) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.JitterFactor > 0 {
		jitter := float64(delay) * config.JitterFactor
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
		if delay < 0 {
			delay = config.BaseDelay
		}
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return delay
}
