// Package agent implements AgentCore: the per-agent actor binding a
// FunctionRegistry, JobManager, and EventSystem under an identity, plus
// AgentManager, the config-driven fleet that owns a set of AgentCores.
package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kolosalai/kolosal-agentd/core"
	"github.com/kolosalai/kolosal-agentd/event"
	"github.com/kolosalai/kolosal-agentd/function"
	"github.com/kolosalai/kolosal-agentd/job"
	"github.com/kolosalai/kolosal-agentd/message"
)

// registryExecutor adapts *function.Registry to job.Executor: the two
// Result types are structurally identical but distinct, so Execute maps one
// onto the other field by field rather than importing function into job.
type registryExecutor struct {
	reg *function.Registry
}

func (e registryExecutor) Execute(ctx context.Context, name string, params core.AgentData) (job.ExecuteResult, error) {
	result, err := e.reg.Execute(ctx, name, params)
	return job.ExecuteResult{
		Success:         result.Success,
		Output:          result.Output,
		Error:           result.Error,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}, err
}

// Core is one agent: an identity plus a FunctionRegistry, JobManager, and
// EventSystem, optionally wired to a shared MessageRouter for inter-agent
// communication.
type Core struct {
	ID           string
	Name         string
	Type         string
	Capabilities []string

	registry *function.Registry
	jobs     *job.Manager
	events   *event.Bus
	router   *message.Router
	logger   core.Logger

	running atomic.Bool
	subID   uint64
}

// New constructs an AgentCore with its own function registry, job manager,
// and event bus. The registry starts empty; Manager.buildRegistry registers
// the builtins and the config-driven functions before Start.
func New(name, agentType string, capabilities []string, logger core.Logger) *Core {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	reg := function.New(logger)
	c := &Core{
		ID:           uuid.NewString(),
		Name:         name,
		Type:         agentType,
		Capabilities: capabilities,
		registry:     reg,
		events:       event.New(logger),
		logger:       logger,
	}
	c.jobs = job.New(registryExecutor{reg: reg}, logger)
	return c
}

// Registry exposes the function registry so Manager can populate it from
// config before the agent starts.
func (c *Core) Registry() *function.Registry { return c.registry }

// SetJobQueueDepthWarning forwards to the agent's JobManager; see
// job.Manager.SetQueueDepthWarning.
func (c *Core) SetJobQueueDepthWarning(depth int) { c.jobs.SetQueueDepthWarning(depth) }

// Events exposes the event bus for subscription by callers outside the
// agent (e.g. AgentManager forwarding lifecycle events to httpapi).
func (c *Core) Events() *event.Bus { return c.events }

// ListCapabilities returns this agent's advertised capability list, read by
// orchestration's load-balancing helpers.
func (c *Core) ListCapabilities() []string { return c.Capabilities }

// SetRouter wires a shared MessageRouter and subscribes this agent's ID,
// dispatching incoming messages to HandleMessage.
func (c *Core) SetRouter(r *message.Router) {
	c.router = r
	if r != nil {
		r.Subscribe(c.ID, c.HandleMessage)
	}
}

// Start marks the agent running and emits "agent_started".
func (c *Core) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return &core.FrameworkError{Op: "agent.Start", Kind: core.KindConflict, ID: c.ID, Err: core.ErrAlreadyStarted}
	}
	c.events.Emit("agent_started", c.ID, core.NewAgentData())
	return nil
}

// Stop marks the agent stopped, unsubscribes from the router, and shuts
// down its job manager. Idempotent.
func (c *Core) Stop() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.router != nil {
		c.router.Unsubscribe(c.ID)
	}
	c.jobs.Shutdown()
	c.events.Emit("agent_stopped", c.ID, core.NewAgentData())
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (c *Core) IsRunning() bool { return c.running.Load() }

// ExecuteFunction runs name synchronously against this agent's registry.
func (c *Core) ExecuteFunction(ctx context.Context, name string, params core.AgentData) (function.Result, error) {
	return c.registry.Execute(ctx, name, params)
}

// ExecuteFunctionAsync submits name to this agent's job queue and returns
// the job id immediately.
func (c *Core) ExecuteFunctionAsync(name string, params core.AgentData, priority int, requester string) string {
	return c.jobs.SubmitJob(name, params, priority, requester)
}

// JobStatus returns the status of a previously submitted async job.
func (c *Core) JobStatus(jobID string) (job.Status, error) {
	return c.jobs.GetJobStatus(jobID)
}

// JobResult returns the result of a finished async job, if any.
func (c *Core) JobResult(jobID string) (*job.ExecuteResult, error) {
	return c.jobs.GetJobResult(jobID)
}

// SendMessage routes one message of msgType carrying payload to targetAgent
// over the shared router. A nil router (no MessageRouter configured) is a
// no-op, matching a single-agent deployment with nothing to talk to.
func (c *Core) SendMessage(targetAgent, msgType string, payload core.AgentData) error {
	if c.router == nil {
		return nil
	}
	return c.router.RouteMessage(message.Message{
		ID:        uuid.NewString(),
		From:      c.ID,
		To:        targetAgent,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// BroadcastMessage fans msgType/payload out to every other subscribed agent.
func (c *Core) BroadcastMessage(msgType string, payload core.AgentData) {
	if c.router == nil {
		return
	}
	c.router.BroadcastMessage(message.Message{
		ID:        uuid.NewString(),
		From:      c.ID,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// HandleMessage is this agent's DeliveryCallback: it reacts to the three
// built-in message types (ping, greeting, function_request) and emits
// "message_received" for every message regardless of type.
func (c *Core) HandleMessage(msg message.Message) {
	data := core.NewAgentData()
	data["from"] = core.StringValue(msg.From)
	data["type"] = core.StringValue(msg.Type)
	c.events.Emit("message_received", c.ID, data)

	switch msg.Type {
	case "ping":
		c.SendMessage(msg.From, "pong", core.NewAgentData())
	case "greeting":
		c.logger.Info("agent received greeting", map[string]interface{}{"agent_id": c.ID, "from": msg.From})
	case "function_request":
		name, _ := msg.Payload["function"].String()
		params, _ := msg.Payload["params"].Map()
		if params == nil {
			params = core.NewAgentData()
		}
		result, err := c.ExecuteFunction(context.Background(), name, params)
		reply := core.NewAgentData()
		reply["success"] = core.BoolValue(err == nil && result.Success)
		reply["output"] = core.MapValue(result.Output)
		if err != nil {
			reply["error"] = core.StringValue(err.Error())
		} else if result.Error != "" {
			reply["error"] = core.StringValue(result.Error)
		}
		c.SendMessage(msg.From, "function_response", reply)
	}
}
