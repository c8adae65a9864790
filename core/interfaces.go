package core

import (
	"context"
	"sync"
)

// Logger is the minimal logging contract every subsystem constructor
// accepts. Implementations: ProductionLogger (structured JSON or text) and
// NoOpLogger (tests, optional dependencies).
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	// Context-aware variants for trace and request correlation.
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a per-component label, so one
// base configuration can be shared while structured logs stay filterable
// by subsystem:
//
//	kubectl logs ... | jq 'select(.component | startswith("agent/"))'
//	kubectl logs ... | jq 'select(.component == "framework/node")'
//
// Component naming convention:
//   - "framework/core"     - config, errors, middleware
//   - "framework/node"     - engine registry and autoscaler
//   - "framework/download" - model acquisition
//   - "framework/workflow" - sequential and DAG execution
//   - "agent/<name>"       - one fleet member's own logging
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the span/metric contract the telemetry package's
// OTelProvider satisfies; NoOpTelemetry stands in when no pipeline is
// configured.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span is one unit of a trace.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// AIClient is the completion contract the ai package's providers satisfy
// and node's engine handles consume.
type AIClient interface {
	GenerateResponse(ctx context.Context, prompt string, options *AIOptions) (*AIResponse, error)
}

// AIOptions tunes one GenerateResponse call.
type AIOptions struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	SystemPrompt string
}

// AIResponse is one completed generation.
type AIResponse struct {
	Content string
	Model   string
	Usage   TokenUsage
}

// TokenUsage is the provider-reported token accounting for one response.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Default no-op implementations

// NoOpLogger discards everything; the default for nil logger parameters.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry drops spans and metrics; the default until a real pipeline
// is installed.
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan is NoOpTelemetry's span.
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}

// ============================================================================
// Global Registry Pattern for Telemetry Integration
// ============================================================================

// MetricsRegistry lets the telemetry package register itself with core.
// This avoids a circular dependency while letting node, job, monitor, and
// download emit metrics (engine loads/unloads, queue depth, completion
// counters, download bytes) without importing telemetry.
//
// The telemetry module implements this via FrameworkMetricsRegistry and
// registers it with SetMetricsRegistry() during initialization.
type MetricsRegistry interface {
	// Counter increments a counter metric by 1.
	// Example: Counter("node.engine.loads", "engine_id", "default")
	Counter(name string, labels ...string)

	// EmitWithContext emits a metric carrying ctx for trace correlation.
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)

	// GetBaggage returns the correlation baggage attached to ctx.
	GetBaggage(ctx context.Context) map[string]string

	// Gauge sets a point-in-time measurement.
	// Example: Gauge("job.queue.depth", 12)
	Gauge(name string, value float64, labels ...string)

	// Histogram records a value in a distribution.
	// Example: Histogram("completion.turnaround_ms", 950, "engine", "default")
	Histogram(name string, value float64, labels ...string)
}

// Global registry - set by the telemetry module when it initializes
var globalMetricsRegistry MetricsRegistry

// SetMetricsRegistry installs (or, with nil, removes) the process-wide
// metrics registry.
func SetMetricsRegistry(registry MetricsRegistry) {
	globalMetricsRegistry = registry

	// Enable metrics on all existing loggers
	enableMetricsOnExistingLoggers()
}

// GetGlobalMetricsRegistry returns the installed registry, or nil before
// telemetry initialization.
//
// Usage pattern:
//
//	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
//	    registry.Counter("node.engine.loads", "engine_id", id)
//	}
func GetGlobalMetricsRegistry() MetricsRegistry {
	return globalMetricsRegistry
}

// Track created loggers to enable metrics when telemetry becomes available
var createdLoggers []*ProductionLogger
var loggersMutex sync.RWMutex

func trackLogger(logger *ProductionLogger) {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	createdLoggers = append(createdLoggers, logger)

	// If metrics already available, enable immediately
	if globalMetricsRegistry != nil {
		logger.EnableMetrics()
	}
}

func enableMetricsOnExistingLoggers() {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	for _, logger := range createdLoggers {
		logger.EnableMetrics()
	}
}
