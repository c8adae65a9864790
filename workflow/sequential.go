// Package workflow implements SequentialWorkflowExecutor: a registry of
// validated, ordered step lists run against agent function calls with
// per-step preconditions, validation, linear-backoff retry, and context
// threading.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kolosalai/kolosal-agentd/agent"
	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/function"
	"github.com/kolosalai/kolosal-agentd/resilience"
)

// AgentHandle is the subset of agent.Core's method set a workflow step
// invokes. agent.Core satisfies this structurally.
type AgentHandle interface {
	ExecuteFunction(ctx context.Context, name string, params core.AgentData) (function.Result, error)
}

// AgentLookup resolves an agent id to an AgentHandle.
type AgentLookup interface {
	Get(agentID string) (AgentHandle, bool)
}

// managerLookup adapts *agent.Manager to AgentLookup.
type managerLookup struct{ m *agent.Manager }

func (l managerLookup) Get(id string) (AgentHandle, bool) {
	c, ok := l.m.Get(id)
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

// NewAgentLookup adapts an *agent.Manager for use as an Executor's
// AgentLookup.
func NewAgentLookup(m *agent.Manager) AgentLookup { return managerLookup{m: m} }

// Step is one unit of a SequentialWorkflow.
type Step struct {
	StepID            string
	StepName          string
	AgentID           string
	FunctionName      string
	Parameters        core.AgentData
	TimeoutSeconds    int
	MaxRetries        int
	ContinueOnFailure bool
	Precondition      func(context core.AgentData) bool
	Validation        func(result function.Result) bool
	ResultProcessor   func(context core.AgentData, result function.Result) core.AgentData
}

// SequentialWorkflow is an ordered, validated list of Steps.
type SequentialWorkflow struct {
	ID                      string
	Steps                   []Step
	StopOnFailure           bool
	MaxExecutionTimeSeconds int
	GlobalContext           core.AgentData
	OnStepComplete          func(step Step, result function.Result)
}

// StepResult is the recorded outcome of one executed step. Step itself is
// excluded from the wire form: its precondition/validation/processor hooks
// are Go funcs with no JSON representation.
type StepResult struct {
	Step            Step            `json:"-"`
	StepID          string          `json:"step_id"`
	Result          function.Result `json:"result"`
	Success         bool            `json:"success"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	Attempts        int             `json:"attempts"`
}

// Result is the outcome of one ExecuteWorkflow call.
type Result struct {
	WorkflowID      string                `json:"workflow_id"`
	ExecutionID     string                `json:"execution_id"`
	Success         bool                  `json:"success"`
	Error           string                `json:"error,omitempty"`
	ExecutedSteps   []string              `json:"executed_steps"`
	StepResults     map[string]StepResult `json:"step_results"`
	SuccessfulSteps int                   `json:"successful_steps"`
	FailedSteps     int                   `json:"failed_steps"`
	InitialContext  core.AgentData        `json:"initial_context"`
	FinalContext    core.AgentData        `json:"final_context"`
	DurationMs      int64                 `json:"duration_ms"`
}

// asyncExecution tracks one ExecuteWorkflowAsync call's in-flight/finished
// state.
type asyncExecution struct {
	status string // "running", "completed", "failed"
	result *Result
}

// Executor owns the workflow registry, per-workflow cancellation flags, and
// async execution bookkeeping.
type Executor struct {
	mu         sync.RWMutex
	workflows  map[string]*SequentialWorkflow
	cancelled  map[string]*atomic.Bool
	executions map[string]*asyncExecution

	agents AgentLookup
	logger core.Logger

	defaultStepTimeout time.Duration
}

// NewExecutor constructs an empty SequentialWorkflowExecutor.
func NewExecutor(agents AgentLookup, logger core.Logger) *Executor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Executor{
		workflows:  make(map[string]*SequentialWorkflow),
		cancelled:  make(map[string]*atomic.Bool),
		executions: make(map[string]*asyncExecution),
		agents:     agents,
		logger:     logger,
	}
}

// SetDefaultStepTimeout sets the per-step timeout applied when a Step leaves
// TimeoutSeconds unset (zero).
func (e *Executor) SetDefaultStepTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultStepTimeout = d
}

// RegisterWorkflow validates wf and adds it to the registry.
func (e *Executor) RegisterWorkflow(wf *SequentialWorkflow) error {
	if err := e.validate(wf); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[wf.ID] = wf
	e.cancelled[wf.ID] = &atomic.Bool{}
	return nil
}

func (e *Executor) validate(wf *SequentialWorkflow) error {
	if wf.ID == "" {
		return &core.FrameworkError{Op: "workflow.RegisterWorkflow", Kind: core.KindValidation, Err: core.ErrValidationFailed}
	}
	if len(wf.Steps) == 0 {
		return &core.FrameworkError{Op: "workflow.RegisterWorkflow", Kind: core.KindValidation, ID: wf.ID, Err: fmt.Errorf("%w: no steps", core.ErrValidationFailed)}
	}
	seen := make(map[string]bool, len(wf.Steps))
	for _, s := range wf.Steps {
		if s.StepID == "" || s.AgentID == "" || s.FunctionName == "" {
			return &core.FrameworkError{Op: "workflow.RegisterWorkflow", Kind: core.KindValidation, ID: wf.ID, Err: fmt.Errorf("%w: step missing id/agent/function", core.ErrValidationFailed)}
		}
		if seen[s.StepID] {
			return &core.FrameworkError{Op: "workflow.RegisterWorkflow", Kind: core.KindValidation, ID: wf.ID, Err: fmt.Errorf("%w: duplicate step id %q", core.ErrValidationFailed, s.StepID)}
		}
		seen[s.StepID] = true
		if _, ok := e.agents.Get(s.AgentID); !ok {
			return &core.FrameworkError{Op: "workflow.RegisterWorkflow", Kind: core.KindValidation, ID: wf.ID, Err: fmt.Errorf("%w: agent %q does not exist", core.ErrValidationFailed, s.AgentID)}
		}
	}
	return nil
}

// ExecuteWorkflow runs wf's steps in order against inputContext: merge
// global and input contexts, check precondition, invoke with retries, then
// apply the result processor and failure policy.
func (e *Executor) ExecuteWorkflow(ctx context.Context, workflowID string, inputContext core.AgentData) (*Result, error) {
	e.mu.RLock()
	wf, ok := e.workflows[workflowID]
	cancelFlag := e.cancelled[workflowID]
	e.mu.RUnlock()
	if !ok {
		return nil, &core.FrameworkError{Op: "workflow.ExecuteWorkflow", Kind: core.KindNotFound, ID: workflowID, Err: core.ErrWorkflowNotFound}
	}
	cancelFlag.Store(false)

	start := time.Now()
	working := core.Merge(wf.GlobalContext, inputContext)
	initial := working.Clone()

	res := &Result{
		WorkflowID:     workflowID,
		ExecutionID:    uuid.NewString(),
		StepResults:    make(map[string]StepResult),
		InitialContext: initial,
	}

	maxDuration := time.Duration(wf.MaxExecutionTimeSeconds) * time.Second

	for _, step := range wf.Steps {
		if cancelFlag.Load() {
			res.Success = false
			res.Error = "Workflow cancelled"
			break
		}
		if maxDuration > 0 && time.Since(start) > maxDuration {
			res.Success = false
			res.Error = fmt.Sprintf("Step %s failed: workflow exceeded max execution time", step.StepID)
			break
		}

		sr := e.runStep(ctx, step, working)
		res.ExecutedSteps = append(res.ExecutedSteps, step.StepID)
		res.StepResults[step.StepID] = sr

		if wf.OnStepComplete != nil {
			wf.OnStepComplete(step, sr.Result)
		}

		if sr.Success {
			res.SuccessfulSteps++
			if step.ResultProcessor != nil {
				working = step.ResultProcessor(working, sr.Result)
			} else {
				working = core.Merge(working, sr.Result.Output)
			}
			continue
		}

		res.FailedSteps++
		if wf.StopOnFailure && !step.ContinueOnFailure {
			res.Error = fmt.Sprintf("Step %s failed: %s", step.StepID, sr.Error)
			break
		}
	}

	res.FinalContext = working
	res.DurationMs = time.Since(start).Milliseconds()
	res.Success = res.FailedSteps == 0 || !wf.StopOnFailure
	if res.Error != "" {
		res.Success = false
	}
	return res, nil
}

// runStep invokes one step with precondition checking and linear-backoff
// retry, returning the recorded StepResult regardless of outcome.
func (e *Executor) runStep(ctx context.Context, step Step, data core.AgentData) StepResult {
	start := time.Now()

	if step.Precondition != nil && !step.Precondition(data) {
		return StepResult{Step: step, StepID: step.StepID, Success: false, Error: "precondition not met", ExecutionTimeMs: time.Since(start).Milliseconds()}
	}

	agentHandle, ok := e.agents.Get(step.AgentID)
	if !ok {
		return StepResult{Step: step, StepID: step.StepID, Success: false, Error: fmt.Sprintf("agent %q not found", step.AgentID), ExecutionTimeMs: time.Since(start).Milliseconds()}
	}

	invocationContext := core.Merge(data, step.Parameters)

	maxRetries := step.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	e.mu.RLock()
	defaultTimeout := e.defaultStepTimeout
	e.mu.RUnlock()

	var lastResult function.Result
	var lastErr error
	attempts := 0
	succeeded := false

	// retryCfg reproduces the original hand-rolled loop's linear backoff
	// (1000ms * completed-attempt-count between retries) through
	// resilience.Retry instead of a bespoke sleep loop.
	retryCfg := &resilience.RetryConfig{
		MaxAttempts: maxRetries + 1,
		DelayFunc: func(attempt int) time.Duration {
			return time.Duration(1000*attempt) * time.Millisecond
		},
	}

	_ = resilience.Retry(ctx, retryCfg, func() error {
		attempts++
		stepCtx := ctx
		var cancel context.CancelFunc
		switch {
		case step.TimeoutSeconds > 0:
			stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		case defaultTimeout > 0:
			stepCtx, cancel = context.WithTimeout(ctx, defaultTimeout)
		}
		result, err := agentHandle.ExecuteFunction(stepCtx, step.FunctionName, invocationContext)
		if cancel != nil {
			cancel()
		}
		lastResult, lastErr = result, err

		ok := err == nil && result.Success
		if ok && step.Validation != nil {
			ok = step.Validation(result)
		}
		if ok {
			succeeded = true
			return nil
		}
		if err != nil {
			return err
		}
		if result.Error != "" {
			return fmt.Errorf("%s", result.Error)
		}
		return fmt.Errorf("validation failed")
	})

	if succeeded {
		return StepResult{Step: step, StepID: step.StepID, Result: lastResult, Success: true, ExecutionTimeMs: time.Since(start).Milliseconds(), Attempts: attempts}
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	} else {
		errMsg = lastResult.Error
	}
	if errMsg == "" {
		errMsg = "validation failed"
	}
	return StepResult{Step: step, StepID: step.StepID, Result: lastResult, Success: false, Error: errMsg, ExecutionTimeMs: time.Since(start).Milliseconds(), Attempts: attempts}
}

// ExecuteWorkflowAsync runs workflowID in a detached goroutine and returns
// its execution id immediately.
func (e *Executor) ExecuteWorkflowAsync(workflowID string, inputContext core.AgentData) (string, error) {
	e.mu.RLock()
	_, ok := e.workflows[workflowID]
	e.mu.RUnlock()
	if !ok {
		return "", &core.FrameworkError{Op: "workflow.ExecuteWorkflowAsync", Kind: core.KindNotFound, ID: workflowID, Err: core.ErrWorkflowNotFound}
	}

	execID := uuid.NewString()
	e.mu.Lock()
	e.executions[execID] = &asyncExecution{status: "running"}
	e.mu.Unlock()

	go func() {
		result, err := e.ExecuteWorkflow(context.Background(), workflowID, inputContext)
		e.mu.Lock()
		defer e.mu.Unlock()
		exec := e.executions[execID]
		if err != nil {
			exec.status = "failed"
			return
		}
		result.ExecutionID = execID
		exec.result = result
		if result.Success {
			exec.status = "completed"
		} else {
			exec.status = "failed"
		}
	}()

	return execID, nil
}

// GetWorkflowStatus returns an async execution's current status.
func (e *Executor) GetWorkflowStatus(executionID string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return "", &core.FrameworkError{Op: "workflow.GetWorkflowStatus", Kind: core.KindNotFound, ID: executionID, Err: core.ErrWorkflowNotFound}
	}
	return exec.status, nil
}

// GetWorkflowResult returns an async execution's result once finished.
func (e *Executor) GetWorkflowResult(executionID string) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return nil, &core.FrameworkError{Op: "workflow.GetWorkflowResult", Kind: core.KindNotFound, ID: executionID, Err: core.ErrWorkflowNotFound}
	}
	return exec.result, nil
}

// ListWorkflows returns every currently registered workflow.
func (e *Executor) ListWorkflows() []*SequentialWorkflow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*SequentialWorkflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		out = append(out, wf)
	}
	return out
}

// GetWorkflow returns the registered workflow identified by workflowID.
func (e *Executor) GetWorkflow(workflowID string) (*SequentialWorkflow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wf, ok := e.workflows[workflowID]
	return wf, ok
}

// DeleteWorkflow removes workflowID from the registry along with its
// cancellation flag; in-flight async executions already started are left to
// finish on their own.
func (e *Executor) DeleteWorkflow(workflowID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.workflows[workflowID]; !ok {
		return &core.FrameworkError{Op: "workflow.DeleteWorkflow", Kind: core.KindNotFound, ID: workflowID, Err: core.ErrWorkflowNotFound}
	}
	delete(e.workflows, workflowID)
	delete(e.cancelled, workflowID)
	return nil
}

// CancelWorkflow sets workflowID's cancellation flag; the next step
// boundary in any in-flight execution observes it and aborts.
func (e *Executor) CancelWorkflow(workflowID string) error {
	e.mu.RLock()
	flag, ok := e.cancelled[workflowID]
	e.mu.RUnlock()
	if !ok {
		return &core.FrameworkError{Op: "workflow.CancelWorkflow", Kind: core.KindNotFound, ID: workflowID, Err: core.ErrWorkflowNotFound}
	}
	flag.Store(true)
	return nil
}
