package function

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/resilience"
)

// externalAPIFunction stubs an outbound HTTP call: simulated latency plus an
// echo of the requested endpoint, wrapped in the same circuit breaker and
// retry policy a real outbound call would get.
type externalAPIFunction struct {
	breaker *resilience.CircuitBreaker
}

// NewExternalAPI constructs the "external_api" builtin.
func NewExternalAPI(logger core.Logger) Function {
	cfg := resilience.DefaultConfig()
	cfg.Name = "external_api"
	cfg.Logger = logger
	cb, err := resilience.NewCircuitBreaker(cfg)
	if err != nil {
		cb, _ = resilience.NewCircuitBreaker(resilience.DefaultConfig())
	}
	return &externalAPIFunction{breaker: cb}
}

func (f *externalAPIFunction) Invoke(ctx context.Context, params core.AgentData) (Result, error) {
	endpoint, _ := params["endpoint"].String()
	if endpoint == "" {
		return Result{}, &core.FrameworkError{Op: "function.external_api", Kind: core.KindValidation, Err: core.ErrValidationFailed}
	}

	var response string
	op := func() (string, error) {
		var resp string
		err := f.breaker.Execute(ctx, func() error {
			latency := time.Duration(20+rand.Intn(80)) * time.Millisecond
			select {
			case <-time.After(latency):
			case <-ctx.Done():
				return ctx.Err()
			}
			resp = fmt.Sprintf("stub response from %s", endpoint)
			return nil
		})
		return resp, err
	}

	response, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(2),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		return Result{}, &core.FrameworkError{Op: "function.external_api", Kind: core.KindExecution, ID: endpoint, Err: fmt.Errorf("%w: %v", core.ErrExecutionFailed, err)}
	}

	out := core.NewAgentData()
	out["endpoint"] = core.StringValue(endpoint)
	out["response"] = core.StringValue(response)
	return Result{Success: true, Output: out}, nil
}
