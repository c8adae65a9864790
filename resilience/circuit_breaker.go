package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// State is the breaker's position: closed lets calls through, open rejects
// them, half-open admits probes after the open timeout elapses.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes one breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold int

	// SuccessThreshold is the consecutive half-open successes needed to
	// close again.
	SuccessThreshold int

	// OpenTimeout is how long the breaker stays open before admitting a
	// probe.
	OpenTimeout time.Duration

	// Logger for state transitions.
	Logger core.Logger
}

// DefaultConfig returns the thresholds used throughout this runtime.
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker is a three-state consecutive-failure breaker. Transitions
// emit a counter through core.GetGlobalMetricsRegistry when telemetry is
// installed.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger core.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker validates config and builds a closed breaker. A nil
// config gets DefaultConfig.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FailureThreshold <= 0 {
		return nil, fmt.Errorf("resilience: failure threshold must be positive, got %d", config.FailureThreshold)
	}
	if config.SuccessThreshold <= 0 {
		return nil, fmt.Errorf("resilience: success threshold must be positive, got %d", config.SuccessThreshold)
	}
	if config.OpenTimeout <= 0 {
		return nil, fmt.Errorf("resilience: open timeout must be positive, got %v", config.OpenTimeout)
	}
	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &CircuitBreaker{
		name:   config.Name,
		cfg:    *config,
		logger: logger,
		state:  StateClosed,
	}, nil
}

// CanExecute reports whether a call may proceed, moving an expired open
// breaker to half-open as a side effect.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	default: // StateOpen
		if time.Since(cb.openedAt) >= cb.cfg.OpenTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	}
}

// RecordSuccess counts a successful call; enough half-open successes close
// the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure counts a failed call; at the threshold the breaker opens,
// and any half-open failure reopens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen)
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	}
}

// Execute runs fn through the breaker: rejected outright with
// core.ErrCircuitBreakerOpen when open, otherwise recorded as a success or
// failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return core.ErrCircuitBreakerOpen
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns the breaker's current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition must run with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openedAt = time.Now()
	}

	cb.logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": cb.name,
		"from": from.String(),
		"to":   to.String(),
	})
	if reg := core.GetGlobalMetricsRegistry(); reg != nil {
		reg.Counter("resilience.circuit_breaker.transitions", "name", cb.name, "to", to.String())
	}
}
