package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/function"
)

// Pattern names one of the six collaboration patterns ExecuteCollaboration
// dispatches on.
type Pattern string

const (
	PatternSequential  Pattern = "sequential"
	PatternParallel    Pattern = "parallel"
	PatternPipeline    Pattern = "pipeline"
	PatternConsensus   Pattern = "consensus"
	PatternHierarchy   Pattern = "hierarchy"
	PatternNegotiation Pattern = "negotiation"
)

// Aggregator combines a parallel pattern's per-agent results into one
// AgentData. A nil Aggregator falls back to the default
// {result_0, result_1, ..., success_count} shape.
type Aggregator func(results []function.Result) core.AgentData

// CollaborationGroup names the agents participating in one
// ExecuteCollaboration call, the default pattern they run under, and the
// pattern-specific knobs consensus and negotiation read. SharedContext is
// merged under every invocation's input (the input wins on key collision).
type CollaborationGroup struct {
	ID                   string
	Pattern              Pattern
	AgentIDs             []string
	SharedContext        core.AgentData
	Aggregator           Aggregator
	ConsensusThreshold   float64
	MaxNegotiationRounds int
}

// ExecuteCollaboration runs one of the six collaboration patterns against
// group's agents with input, returning the pattern's combined AgentData.
func (o *Orchestrator) ExecuteCollaboration(ctx context.Context, pattern Pattern, group CollaborationGroup, input core.AgentData) (core.AgentData, error) {
	if pattern == "" {
		pattern = group.Pattern
	}
	if len(group.SharedContext) > 0 {
		input = core.Merge(group.SharedContext, input)
	}
	switch pattern {
	case PatternSequential, PatternPipeline:
		return o.sequentialCollaboration(ctx, group.AgentIDs, input)
	case PatternParallel:
		return o.parallelCollaboration(ctx, group, input)
	case PatternConsensus:
		out, err := o.parallelCollaboration(ctx, group, input)
		if err != nil {
			return nil, err
		}
		out["consensus_threshold"] = core.FloatValue(group.ConsensusThreshold)
		return out, nil
	case PatternHierarchy:
		return o.hierarchyCollaboration(ctx, group.AgentIDs, input)
	case PatternNegotiation:
		return o.negotiationCollaboration(ctx, group, input)
	default:
		return nil, fmt.Errorf("orchestration: unknown collaboration pattern %q", pattern)
	}
}

// sequentialCollaboration threads input through each agent's "process"
// function, feeding each result forward as the next agent's input.
func (o *Orchestrator) sequentialCollaboration(ctx context.Context, agentIDs []string, input core.AgentData) (core.AgentData, error) {
	current := input
	for _, id := range agentIDs {
		handle, ok := o.agents.Get(id)
		if !ok {
			return nil, fmt.Errorf("orchestration: agent %q not found", id)
		}
		o.trackLoad(id, 1)
		result, err := handle.ExecuteFunction(ctx, "process", current)
		o.trackLoad(id, -1)
		if err != nil {
			return nil, err
		}
		if !result.Success {
			return nil, fmt.Errorf("orchestration: agent %q process failed: %s", id, result.Error)
		}
		current = result.Output
	}
	return current, nil
}

// parallelCollaboration calls "process" on every agent in group
// concurrently and combines the results via group.Aggregator, or the
// default {result_N, success_count} shape if none is set.
func (o *Orchestrator) parallelCollaboration(ctx context.Context, group CollaborationGroup, input core.AgentData) (core.AgentData, error) {
	results := make([]function.Result, len(group.AgentIDs))
	var wg sync.WaitGroup
	for i, id := range group.AgentIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			handle, ok := o.agents.Get(id)
			if !ok {
				results[i] = function.Result{Success: false, Error: fmt.Sprintf("agent %q not found", id)}
				return
			}
			o.trackLoad(id, 1)
			defer o.trackLoad(id, -1)
			result, err := handle.ExecuteFunction(ctx, "process", input)
			if err != nil {
				results[i] = function.Result{Success: false, Error: err.Error()}
				return
			}
			results[i] = result
		}(i, id)
	}
	wg.Wait()

	if group.Aggregator != nil {
		return group.Aggregator(results), nil
	}

	out := core.NewAgentData()
	successCount := 0
	for i, r := range results {
		out[fmt.Sprintf("result_%d", i)] = core.MapValue(r.Output)
		if r.Success {
			successCount++
		}
	}
	out["success_count"] = core.IntValue(successCount)
	return out, nil
}

// hierarchyCollaboration calls the first agent's "coordinate" function,
// treating it as the group's master.
func (o *Orchestrator) hierarchyCollaboration(ctx context.Context, agentIDs []string, input core.AgentData) (core.AgentData, error) {
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("orchestration: hierarchy collaboration requires at least one agent")
	}
	master := agentIDs[0]
	handle, ok := o.agents.Get(master)
	if !ok {
		return nil, fmt.Errorf("orchestration: master agent %q not found", master)
	}
	o.trackLoad(master, 1)
	result, err := handle.ExecuteFunction(ctx, "coordinate", input)
	o.trackLoad(master, -1)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("orchestration: master %q coordinate failed: %s", master, result.Error)
	}
	return result.Output, nil
}

// negotiationCollaboration runs up to group.MaxNegotiationRounds rounds;
// each round every agent is offered the current proposal via "negotiate"
// and the first successful response becomes the next round's proposal.
// Negotiation stops early once a round produces no accepted response.
func (o *Orchestrator) negotiationCollaboration(ctx context.Context, group CollaborationGroup, input core.AgentData) (core.AgentData, error) {
	maxRounds := group.MaxNegotiationRounds
	if maxRounds <= 0 {
		maxRounds = 1
	}

	proposal := input
	for round := 0; round < maxRounds; round++ {
		accepted := false
		for _, id := range group.AgentIDs {
			handle, ok := o.agents.Get(id)
			if !ok {
				continue
			}
			o.trackLoad(id, 1)
			result, err := handle.ExecuteFunction(ctx, "negotiate", proposal)
			o.trackLoad(id, -1)
			if err == nil && result.Success {
				proposal = result.Output
				accepted = true
				break
			}
		}
		if !accepted {
			break
		}
	}
	return proposal, nil
}

// SelectOptimalAgent returns the lowest-loaded agent among those
// advertising capability, where load is this orchestrator's count of
// currently in-flight step/collaboration invocations against that agent.
func (o *Orchestrator) SelectOptimalAgent(capability string) (string, error) {
	var best string
	bestLoad := int64(-1)
	for _, id := range o.agents.List() {
		handle, ok := o.agents.Get(id)
		if !ok || !contains(handle.ListCapabilities(), capability) {
			continue
		}
		load := o.loadFor(id)
		if bestLoad == -1 || load < bestLoad {
			bestLoad = load
			best = id
		}
	}
	if best == "" {
		return "", fmt.Errorf("orchestration: no agent advertises capability %q", capability)
	}
	return best, nil
}

// DistributeWorkload round-robins tasks across every agent advertising
// taskType as a capability, launching each as a detached "process"
// invocation. It returns the agent id each task was assigned to, in task
// order; an empty string means no capable agent was found for that slot.
func (o *Orchestrator) DistributeWorkload(taskType string, tasks []core.AgentData) []string {
	var capable []string
	for _, id := range o.agents.List() {
		handle, ok := o.agents.Get(id)
		if ok && contains(handle.ListCapabilities(), taskType) {
			capable = append(capable, id)
		}
	}

	assigned := make([]string, len(tasks))
	if len(capable) == 0 {
		return assigned
	}

	for i, task := range tasks {
		id := capable[i%len(capable)]
		assigned[i] = id
		go func(id string, task core.AgentData) {
			handle, ok := o.agents.Get(id)
			if !ok {
				return
			}
			o.trackLoad(id, 1)
			defer o.trackLoad(id, -1)
			if _, err := handle.ExecuteFunction(context.Background(), "process", task); err != nil {
				o.logger.Error("distributed task failed", map[string]interface{}{"agent_id": id, "error": err.Error()})
			}
		}(id, task)
	}
	return assigned
}

// RegisterCollaborationGroup stores group under group.ID for later retrieval
// by httpapi's /collaboration-groups and /coordinate routes.
func (o *Orchestrator) RegisterCollaborationGroup(group CollaborationGroup) error {
	if group.ID == "" || len(group.AgentIDs) == 0 {
		return fmt.Errorf("orchestration: collaboration group requires an id and at least one agent")
	}
	o.groupsMu.Lock()
	defer o.groupsMu.Unlock()
	if o.groups == nil {
		o.groups = make(map[string]CollaborationGroup)
	}
	o.groups[group.ID] = group
	return nil
}

// GetCollaborationGroup returns the registered group identified by id.
func (o *Orchestrator) GetCollaborationGroup(id string) (CollaborationGroup, bool) {
	o.groupsMu.Lock()
	defer o.groupsMu.Unlock()
	g, ok := o.groups[id]
	return g, ok
}

// ListCollaborationGroups returns every currently registered group.
func (o *Orchestrator) ListCollaborationGroups() []CollaborationGroup {
	o.groupsMu.Lock()
	defer o.groupsMu.Unlock()
	out := make([]CollaborationGroup, 0, len(o.groups))
	for _, g := range o.groups {
		out = append(out, g)
	}
	return out
}

// DeleteCollaborationGroup removes the registered group identified by id.
func (o *Orchestrator) DeleteCollaborationGroup(id string) bool {
	o.groupsMu.Lock()
	defer o.groupsMu.Unlock()
	if _, ok := o.groups[id]; !ok {
		return false
	}
	delete(o.groups, id)
	return true
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
