// Package resilience provides the retry and circuit-breaker primitives the
// engine loader, workflow executor, and outbound-call functions share.
package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// RetryConfig tunes one Retry call.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// DelayFunc, when set, replaces the exponential-backoff-plus-jitter
	// calculation with a caller-supplied schedule keyed on the attempt
	// number (1-based). Callers with their own fixed backoff contract
	// (e.g. workflow's linear per-step retry delay) set this instead of
	// reimplementing Retry's loop.
	DelayFunc func(attempt int) time.Duration
}

// DefaultRetryConfig returns the retry shape used for transient engine and
// network failures: three attempts, exponential backoff, jittered.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry runs fn up to MaxAttempts times, sleeping between attempts per the
// configured schedule and honoring ctx cancellation at every boundary. A
// nil config gets DefaultRetryConfig. Exhaustion returns an error wrapping
// core.ErrMaxRetriesExceeded with the last failure.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		// No sleep after the final attempt.
		if attempt == config.MaxAttempts {
			break
		}

		if config.DelayFunc != nil {
			delay = config.DelayFunc(attempt)
		} else {
			if attempt > 1 {
				delay = time.Duration(float64(delay) * config.BackoffFactor)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			}
			if config.JitterEnabled {
				// Deterministic per-attempt skew, enough to decorrelate
				// simultaneous retry loops without pulling in randomness.
				jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
				delay += jitter
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// RetryWithCircuitBreaker is Retry with each attempt gated and recorded by
// cb: an open breaker rejects the attempt with core.ErrCircuitBreakerOpen
// (still counted against MaxAttempts, so a trip mid-loop drains quickly).
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}

		if err := fn(); err != nil {
			cb.RecordFailure()
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}
