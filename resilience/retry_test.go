package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolosalai/kolosal-agentd/core"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return errors.New("always")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, fastRetryConfig(10), func() error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation should stop further attempts")
}

func TestRetryDelayFuncOverridesSchedule(t *testing.T) {
	var schedule []int
	cfg := &RetryConfig{
		MaxAttempts: 3,
		DelayFunc: func(attempt int) time.Duration {
			schedule = append(schedule, attempt)
			return time.Millisecond
		},
	}
	err := Retry(context.Background(), cfg, func() error { return errors.New("always") })
	require.Error(t, err)
	// Called once per completed attempt except the last.
	assert.Equal(t, []int{1, 2}, schedule)
}

func TestRetryWithCircuitBreakerShortCircuitsWhenOpen(t *testing.T) {
	cb, err := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "retry-test",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
	})
	require.NoError(t, err)
	cb.RecordFailure() // open it

	calls := 0
	err = RetryWithCircuitBreaker(context.Background(), fastRetryConfig(2), cb, func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, calls, "open breaker should reject without invoking fn")
}
