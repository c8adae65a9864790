package workflow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/function"
)

// fakeAgent is a minimal AgentHandle whose Invoke behavior is controlled by
// a test-supplied function, letting tests script failure-then-success
// sequences without a real FunctionRegistry.
type fakeAgent struct {
	invoke func(ctx context.Context, name string, params core.AgentData) (function.Result, error)
}

func (a *fakeAgent) ExecuteFunction(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
	return a.invoke(ctx, name, params)
}

type fakeLookup map[string]AgentHandle

func (l fakeLookup) Get(id string) (AgentHandle, bool) {
	h, ok := l[id]
	return h, ok
}

func TestExecuteWorkflowSuccessMergesContext(t *testing.T) {
	agent := &fakeAgent{invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
		out := core.NewAgentData()
		out["greeting"] = core.StringValue("hello")
		return function.Result{Success: true, Output: out}, nil
	}}
	exec := NewExecutor(fakeLookup{"a1": agent}, &core.NoOpLogger{})

	wf := &SequentialWorkflow{
		ID:            "wf1",
		StopOnFailure: true,
		Steps: []Step{
			{StepID: "s1", AgentID: "a1", FunctionName: "greet"},
		},
	}
	if err := exec.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow: %v", err)
	}

	input := core.NewAgentData()
	input["name"] = core.StringValue("world")
	res, err := exec.ExecuteWorkflow(context.Background(), "wf1", input)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.SuccessfulSteps != 1 || res.FailedSteps != 0 {
		t.Fatalf("unexpected step counts: %+v", res)
	}
	greeting, _ := res.FinalContext["greeting"].String()
	if greeting != "hello" {
		t.Fatalf("expected merged context to carry result, got %+v", res.FinalContext)
	}
	name, _ := res.FinalContext["name"].String()
	if name != "world" {
		t.Fatalf("expected input context preserved, got %+v", res.FinalContext)
	}
}

func TestExecuteWorkflowRetriesThenFails(t *testing.T) {
	var calls int32
	agent := &fakeAgent{invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
		atomic.AddInt32(&calls, 1)
		return function.Result{Success: false, Error: "boom"}, nil
	}}
	exec := NewExecutor(fakeLookup{"a1": agent}, &core.NoOpLogger{})

	wf := &SequentialWorkflow{
		ID:            "wf2",
		StopOnFailure: true,
		Steps: []Step{
			{StepID: "s1", AgentID: "a1", FunctionName: "fail", MaxRetries: 2},
		},
	}
	if err := exec.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow: %v", err)
	}

	res, err := exec.ExecuteWorkflow(context.Background(), "wf2", core.NewAgentData())
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if res.Success {
		t.Fatal("expected overall failure")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts (1 initial + 2 retries), got %d", got)
	}
	if res.FailedSteps != 1 || len(res.ExecutedSteps) != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
}

func TestRegisterWorkflowRejectsUnknownAgent(t *testing.T) {
	exec := NewExecutor(fakeLookup{}, &core.NoOpLogger{})
	wf := &SequentialWorkflow{
		ID:    "wf3",
		Steps: []Step{{StepID: "s1", AgentID: "ghost", FunctionName: "f"}},
	}
	if err := exec.RegisterWorkflow(wf); err == nil {
		t.Fatal("expected validation error for unknown agent")
	}
}

func TestExecuteWorkflowAsyncReportsStatus(t *testing.T) {
	agent := &fakeAgent{invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
		return function.Result{Success: true, Output: core.NewAgentData()}, nil
	}}
	exec := NewExecutor(fakeLookup{"a1": agent}, &core.NoOpLogger{})
	wf := &SequentialWorkflow{ID: "wf4", StopOnFailure: true, Steps: []Step{{StepID: "s1", AgentID: "a1", FunctionName: "f"}}}
	if err := exec.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow: %v", err)
	}

	execID, err := exec.ExecuteWorkflowAsync("wf4", core.NewAgentData())
	if err != nil {
		t.Fatalf("ExecuteWorkflowAsync: %v", err)
	}

	var status string
	for i := 0; i < 1000; i++ {
		status, err = exec.GetWorkflowStatus(execID)
		if err != nil {
			t.Fatalf("GetWorkflowStatus: %v", err)
		}
		if status != "running" {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if status != "completed" {
		t.Fatalf("expected completed, got %s", status)
	}
	result, err := exec.GetWorkflowResult(execID)
	if err != nil || result == nil || !result.Success {
		t.Fatalf("GetWorkflowResult: result=%+v err=%v", result, err)
	}
}
