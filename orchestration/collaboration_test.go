package orchestration

import (
	"context"
	"testing"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/function"
)

func TestSequentialCollaborationThreadsResult(t *testing.T) {
	agents := fakeLookup{
		"a1": {invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
			out := params.Clone()
			out["steps"] = core.IntValue(1)
			return function.Result{Success: true, Output: out}, nil
		}},
		"a2": {invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
			n, _ := params["steps"].Int()
			out := params.Clone()
			out["steps"] = core.IntValue(n + 1)
			return function.Result{Success: true, Output: out}, nil
		}},
	}
	o := NewOrchestrator(agents, &core.NoOpLogger{})

	out, err := o.ExecuteCollaboration(context.Background(), PatternSequential, CollaborationGroup{AgentIDs: []string{"a1", "a2"}}, core.NewAgentData())
	if err != nil {
		t.Fatalf("ExecuteCollaboration: %v", err)
	}
	n, _ := out["steps"].Int()
	if n != 2 {
		t.Fatalf("expected steps=2 after two-agent chain, got %d", n)
	}
}

func TestParallelCollaborationDefaultAggregation(t *testing.T) {
	agents := fakeLookup{"a1": okAgent(), "a2": okAgent()}
	o := NewOrchestrator(agents, &core.NoOpLogger{})

	out, err := o.ExecuteCollaboration(context.Background(), PatternParallel, CollaborationGroup{AgentIDs: []string{"a1", "a2"}}, core.NewAgentData())
	if err != nil {
		t.Fatalf("ExecuteCollaboration: %v", err)
	}
	count, _ := out["success_count"].Int()
	if count != 2 {
		t.Fatalf("expected success_count=2, got %d", count)
	}
	if _, ok := out["result_0"].Map(); !ok {
		t.Fatal("expected result_0 in default aggregation")
	}
}

func TestHierarchyCollaborationCallsMasterCoordinate(t *testing.T) {
	var calledFunc string
	master := &fakeAgent{invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
		calledFunc = name
		return function.Result{Success: true, Output: core.NewAgentData()}, nil
	}}
	agents := fakeLookup{"master": master, "worker": okAgent()}
	o := NewOrchestrator(agents, &core.NoOpLogger{})

	_, err := o.ExecuteCollaboration(context.Background(), PatternHierarchy, CollaborationGroup{AgentIDs: []string{"master", "worker"}}, core.NewAgentData())
	if err != nil {
		t.Fatalf("ExecuteCollaboration: %v", err)
	}
	if calledFunc != "coordinate" {
		t.Fatalf("expected master to be called via coordinate, got %q", calledFunc)
	}
}

func TestNegotiationCollaborationStopsWhenNoAgentAccepts(t *testing.T) {
	rounds := 0
	rejecting := &fakeAgent{invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
		rounds++
		return function.Result{Success: false, Error: "rejected"}, nil
	}}
	agents := fakeLookup{"a1": rejecting}
	o := NewOrchestrator(agents, &core.NoOpLogger{})

	out, err := o.ExecuteCollaboration(context.Background(), PatternNegotiation, CollaborationGroup{AgentIDs: []string{"a1"}, MaxNegotiationRounds: 5}, core.NewAgentData())
	if err != nil {
		t.Fatalf("ExecuteCollaboration: %v", err)
	}
	if rounds != 1 {
		t.Fatalf("expected negotiation to stop after the first rejected round, got %d rounds", rounds)
	}
	if out == nil {
		t.Fatal("expected the original proposal to be returned")
	}
}

func TestSelectOptimalAgentPrefersLowerLoad(t *testing.T) {
	agents := fakeLookup{
		"busy":  {capabilities: []string{"chat"}, invoke: okAgent().invoke},
		"idle":  {capabilities: []string{"chat"}, invoke: okAgent().invoke},
		"other": {capabilities: []string{"vision"}, invoke: okAgent().invoke},
	}
	o := NewOrchestrator(agents, &core.NoOpLogger{})
	o.trackLoad("busy", 5)

	best, err := o.SelectOptimalAgent("chat")
	if err != nil {
		t.Fatalf("SelectOptimalAgent: %v", err)
	}
	if best != "idle" {
		t.Fatalf("expected idle agent to be selected, got %q", best)
	}
}

func TestDistributeWorkloadRoundRobins(t *testing.T) {
	var calls int
	capable := &fakeAgent{capabilities: []string{"batch"}, invoke: func(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
		calls++
		return function.Result{Success: true, Output: core.NewAgentData()}, nil
	}}
	agents := fakeLookup{"w1": capable}
	o := NewOrchestrator(agents, &core.NoOpLogger{})

	tasks := []core.AgentData{core.NewAgentData(), core.NewAgentData(), core.NewAgentData()}
	assigned := o.DistributeWorkload("batch", tasks)
	if len(assigned) != 3 || assigned[0] != "w1" {
		t.Fatalf("unexpected assignment: %+v", assigned)
	}
}
