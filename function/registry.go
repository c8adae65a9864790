// Package function implements the function registry: named callables with a
// human description and kind tag, invoked by name with AgentData parameters.
package function

import (
	"context"
	"sync"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// Kind tags a registered function by how it is implemented.
type Kind string

const (
	KindBuiltin     Kind = "builtin"
	KindLLM         Kind = "llm"
	KindExternalAPI Kind = "external_api"
	KindInference   Kind = "inference"
)

// Result is the outcome of invoking a function.
type Result struct {
	Success         bool           `json:"success"`
	Output          core.AgentData `json:"output"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
}

// Function is any callable the registry can invoke.
type Function interface {
	Invoke(ctx context.Context, params core.AgentData) (Result, error)
}

// entry bundles a Function with its registration metadata.
type entry struct {
	fn          Function
	description string
	kind        Kind
}

// Registry is a name -> Function map guarded by a single mutex; invocation
// itself runs unlocked so long-running functions don't serialize on it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  core.Logger
}

// New constructs an empty registry.
func New(logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{entries: make(map[string]entry), logger: logger}
}

// Register adds or replaces a named function.
func (r *Registry) Register(name, description string, kind Kind, fn Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{fn: fn, description: description, kind: kind}
}

// Unregister removes a named function.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Describe returns a function's description and kind.
func (r *Registry) Describe(name string) (description string, kind Kind, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.entries[name]
	if !exists {
		return "", "", false
	}
	return e.description, e.kind, true
}

// List returns all registered function names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Execute looks up name, invokes it with params, and stamps ExecutionTimeMs
// when the callable itself left it at zero.
func (r *Registry) Execute(ctx context.Context, name string, params core.AgentData) (Result, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, &core.FrameworkError{Op: "function.Execute", Kind: core.KindNotFound, ID: name, Err: core.ErrFunctionNotFound}
	}

	start := time.Now()
	result, err := e.fn.Invoke(ctx, params)
	if err != nil {
		return Result{Success: false, Error: err.Error(), ExecutionTimeMs: time.Since(start).Milliseconds()}, err
	}
	if result.ExecutionTimeMs == 0 {
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
	}
	return result, nil
}

// RegisterBuiltins registers the six builtin-kind callables required for
// test parity: add, echo, delay, text_analysis, data_transform, data_analysis.
func (r *Registry) RegisterBuiltins() {
	r.Register("add", "adds two integers", KindBuiltin, addFunction{})
	r.Register("echo", "echoes input text, optionally uppercased", KindBuiltin, echoFunction{})
	r.Register("delay", "sleeps for the given number of milliseconds", KindBuiltin, delayFunction{})
	r.Register("text_analysis", "word/char counts, trivial sentiment, tokenization, summarization", KindBuiltin, textAnalysisFunction{})
	r.Register("data_transform", "maps an array through a named transform", KindBuiltin, dataTransformFunction{})
	r.Register("data_analysis", "basic/statistical/pattern analysis over a numeric array", KindBuiltin, dataAnalysisFunction{})
}
