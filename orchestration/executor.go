package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolosalai/kolosal-agentd/agent"
	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/function"
)

// AgentHandle is the subset of agent.Core's method set the orchestrator
// drives: function execution plus the capability list load balancing reads.
type AgentHandle interface {
	ExecuteFunction(ctx context.Context, name string, params core.AgentData) (function.Result, error)
	ListCapabilities() []string
}

// AgentLookup resolves agent ids and enumerates every agent the
// orchestrator is allowed to schedule onto.
type AgentLookup interface {
	Get(agentID string) (AgentHandle, bool)
	List() []string
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

func (l managerLookup) List() []string {
	infos := l.m.List()
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.ID
	}
	return ids
}

// NewAgentLookup adapts an *agent.Manager for use as an Orchestrator's
// AgentLookup.
func NewAgentLookup(m *agent.Manager) AgentLookup { return managerLookup{m: m} }

// Step is one node of an orchestrated DAG workflow.
type Step struct {
	StepID          string
	AgentID         string
	FunctionName    string
	Parameters      core.AgentData
	Dependencies    []string
	ParallelAllowed bool
}

// Workflow is a DAG of Steps, identified by ID.
type Workflow struct {
	ID    string
	Steps []Step
}

// StepOutcome is one step's recorded result within a WorkflowResult.
type StepOutcome struct {
	StepID  string          `json:"step_id"`
	Result  function.Result `json:"result"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
}

// WorkflowResult is the outcome of one ExecuteWorkflow call.
type WorkflowResult struct {
	WorkflowID string                 `json:"workflow_id"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Completed  map[string]StepOutcome `json:"step_results"`
	DurationMs int64                  `json:"duration_ms"`
}

// Metrics is a point-in-time snapshot of the orchestrator's workflow
// counters.
type Metrics struct {
	ActiveWorkflows    int64 `json:"active_workflows"`
	CompletedWorkflows int64 `json:"completed_workflows"`
	FailedWorkflows    int64 `json:"failed_workflows"`
	TotalWorkflows     int64 `json:"total_workflows"`
}

// Orchestrator owns a registry of DAG workflows, their retained results,
// and the per-agent load counters load balancing reads from. Scheduling
// state lives in a per-run stepGraph, never on the Orchestrator itself.
type Orchestrator struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
	results   map[string]*WorkflowResult

	agents AgentLookup
	logger core.Logger

	activeWorkflows    atomic.Int64
	completedWorkflows atomic.Int64
	failedWorkflows    atomic.Int64
	totalWorkflows     atomic.Int64

	loadMu sync.Mutex
	load   map[string]int64

	groupsMu sync.Mutex
	groups   map[string]CollaborationGroup

	maxRounds int
}

// NewOrchestrator constructs an empty AgentOrchestrator.
func NewOrchestrator(agents AgentLookup, logger core.Logger) *Orchestrator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Orchestrator{
		workflows: make(map[string]*Workflow),
		results:   make(map[string]*WorkflowResult),
		agents:    agents,
		logger:    logger,
		load:      make(map[string]int64),
	}
}

// SetMaxRounds bounds ExecuteWorkflow's round loop as a backstop beyond
// RegisterWorkflow's cycle-detection check; rounds<=0 disables the cap.
func (o *Orchestrator) SetMaxRounds(rounds int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.maxRounds = rounds
}

// RegisterWorkflow builds a step graph from wf's steps and validates it for
// cycles and missing dependencies before accepting it.
func (o *Orchestrator) RegisterWorkflow(wf *Workflow) error {
	if wf.ID == "" || len(wf.Steps) == 0 {
		return &core.FrameworkError{Op: "orchestration.RegisterWorkflow", Kind: core.KindValidation, Err: core.ErrValidationFailed}
	}
	for _, s := range wf.Steps {
		if s.StepID == "" || s.AgentID == "" || s.FunctionName == "" {
			return &core.FrameworkError{Op: "orchestration.RegisterWorkflow", Kind: core.KindValidation, ID: wf.ID, Err: fmt.Errorf("%w: step missing id/agent/function", core.ErrValidationFailed)}
		}
	}
	if err := newStepGraph(wf.Steps).validate(); err != nil {
		return &core.FrameworkError{Op: "orchestration.RegisterWorkflow", Kind: core.KindValidation, ID: wf.ID, Err: fmt.Errorf("%w: %v", core.ErrValidationFailed, err)}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.workflows[wf.ID] = wf
	return nil
}

// ExecuteWorkflow runs workflowID's DAG to completion round by round: each
// round schedules every ready step (parallel-allowed ones concurrently,
// the rest inline), then fails the whole workflow if any step in that round
// failed.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string) (*WorkflowResult, error) {
	o.mu.RLock()
	wf, ok := o.workflows[workflowID]
	o.mu.RUnlock()
	if !ok {
		return nil, &core.FrameworkError{Op: "orchestration.ExecuteWorkflow", Kind: core.KindNotFound, ID: workflowID, Err: core.ErrWorkflowNotFound}
	}
	dag := newStepGraph(wf.Steps)

	o.activeWorkflows.Add(1)
	o.totalWorkflows.Add(1)
	defer o.activeWorkflows.Add(-1)

	stepsByID := make(map[string]Step, len(wf.Steps))
	for _, s := range wf.Steps {
		stepsByID[s.StepID] = s
	}

	o.mu.RLock()
	maxRounds := o.maxRounds
	o.mu.RUnlock()

	start := time.Now()
	completed := make(map[string]StepOutcome, len(wf.Steps))
	workflowErr := ""
	round := 0

	for !dag.done() {
		round++
		if maxRounds > 0 && round > maxRounds {
			workflowErr = fmt.Sprintf("maximum DAG rounds (%d) exceeded", maxRounds)
			break
		}

		ready := dag.ready()
		if len(ready) == 0 {
			workflowErr = "Circular dependency detected or missing dependencies"
			break
		}

		var parallel, serial []string
		for _, id := range ready {
			dag.markRunning(id)
			if stepsByID[id].ParallelAllowed {
				parallel = append(parallel, id)
			} else {
				serial = append(serial, id)
			}
		}

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, id := range parallel {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				outcome := o.runStep(ctx, stepsByID[id])
				mu.Lock()
				completed[id] = outcome
				mu.Unlock()
			}(id)
		}
		wg.Wait()

		for _, id := range serial {
			completed[id] = o.runStep(ctx, stepsByID[id])
		}

		roundFailed := false
		for _, id := range ready {
			outcome := completed[id]
			if outcome.Success {
				dag.markCompleted(id)
			} else {
				dag.markFailed(id)
				if !roundFailed {
					roundFailed = true
					workflowErr = outcome.Error
				}
			}
		}
		if roundFailed {
			break
		}
	}

	res := &WorkflowResult{
		WorkflowID: workflowID,
		Completed:  completed,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if workflowErr != "" {
		res.Success = false
		res.Error = workflowErr
		o.failedWorkflows.Add(1)
	} else {
		res.Success = true
		o.completedWorkflows.Add(1)
	}

	o.mu.Lock()
	o.results[workflowID] = res
	o.mu.Unlock()
	return res, nil
}

// runStep invokes one step's function on its owning agent, tracking the
// agent's load counter for the duration of the call.
func (o *Orchestrator) runStep(ctx context.Context, step Step) StepOutcome {
	handle, ok := o.agents.Get(step.AgentID)
	if !ok {
		return StepOutcome{StepID: step.StepID, Success: false, Error: fmt.Sprintf("agent %q not found", step.AgentID)}
	}

	o.trackLoad(step.AgentID, 1)
	defer o.trackLoad(step.AgentID, -1)

	result, err := handle.ExecuteFunction(ctx, step.FunctionName, step.Parameters)
	if err != nil {
		return StepOutcome{StepID: step.StepID, Result: result, Success: false, Error: err.Error()}
	}
	return StepOutcome{StepID: step.StepID, Result: result, Success: result.Success, Error: result.Error}
}

// ListWorkflows returns every currently registered DAG workflow.
func (o *Orchestrator) ListWorkflows() []*Workflow {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Workflow, 0, len(o.workflows))
	for _, wf := range o.workflows {
		out = append(out, wf)
	}
	return out
}

// GetWorkflow returns the registered DAG workflow identified by workflowID.
func (o *Orchestrator) GetWorkflow(workflowID string) (*Workflow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	wf, ok := o.workflows[workflowID]
	return wf, ok
}

// DeleteWorkflow removes workflowID's registration and any retained result.
func (o *Orchestrator) DeleteWorkflow(workflowID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.workflows[workflowID]; !ok {
		return &core.FrameworkError{Op: "orchestration.DeleteWorkflow", Kind: core.KindNotFound, ID: workflowID, Err: core.ErrWorkflowNotFound}
	}
	delete(o.workflows, workflowID)
	delete(o.results, workflowID)
	return nil
}

// GetWorkflowResult returns the last recorded result for workflowID.
func (o *Orchestrator) GetWorkflowResult(workflowID string) (*WorkflowResult, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	res, ok := o.results[workflowID]
	if !ok {
		return nil, &core.FrameworkError{Op: "orchestration.GetWorkflowResult", Kind: core.KindNotFound, ID: workflowID, Err: core.ErrWorkflowNotFound}
	}
	return res, nil
}

// GetMetrics returns a snapshot of the workflow counters.
func (o *Orchestrator) GetMetrics() Metrics {
	return Metrics{
		ActiveWorkflows:    o.activeWorkflows.Load(),
		CompletedWorkflows: o.completedWorkflows.Load(),
		FailedWorkflows:    o.failedWorkflows.Load(),
		TotalWorkflows:     o.totalWorkflows.Load(),
	}
}

func (o *Orchestrator) trackLoad(agentID string, delta int64) {
	o.loadMu.Lock()
	defer o.loadMu.Unlock()
	o.load[agentID] += delta
}

func (o *Orchestrator) loadFor(agentID string) int64 {
	o.loadMu.Lock()
	defer o.loadMu.Unlock()
	return o.load[agentID]
}
