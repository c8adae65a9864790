package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"

	"github.com/kolosalai/kolosal-agentd/core"
)

// FrameworkMetricsRegistry adapts an OTelProvider to core.MetricsRegistry,
// so node, job, monitor, download, and resilience can emit metrics through
// core.GetGlobalMetricsRegistry without importing this package.
type FrameworkMetricsRegistry struct {
	provider *OTelProvider
	logger   core.Logger
}

// NewFrameworkMetricsRegistry wraps provider for registration via
// core.SetMetricsRegistry.
func NewFrameworkMetricsRegistry(provider *OTelProvider, logger core.Logger) *FrameworkMetricsRegistry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &FrameworkMetricsRegistry{provider: provider, logger: logger}
}

// Counter implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) Counter(name string, labels ...string) {
	f.provider.addCounter(context.Background(), name, 1, attrsFromPairs(labels))
}

// Gauge implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) Gauge(name string, value float64, labels ...string) {
	f.provider.recordGauge(context.Background(), name, value, attrsFromPairs(labels))
}

// Histogram implements core.MetricsRegistry.
func (f *FrameworkMetricsRegistry) Histogram(name string, value float64, labels ...string) {
	f.provider.recordHistogram(context.Background(), name, value, attrsFromPairs(labels))
}

// EmitWithContext implements core.MetricsRegistry: a histogram record that
// keeps ctx so the SDK can correlate it with an active trace.
func (f *FrameworkMetricsRegistry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	f.provider.recordHistogram(ctx, name, value, attrsFromPairs(labels))
}

// GetBaggage implements core.MetricsRegistry, surfacing the OTel baggage
// members attached to ctx.
func (f *FrameworkMetricsRegistry) GetBaggage(ctx context.Context) map[string]string {
	members := baggage.FromContext(ctx).Members()
	out := make(map[string]string, len(members))
	for _, m := range members {
		out[m.Key()] = m.Value()
	}
	return out
}

// attrsFromPairs converts a flat key,value,key,value label list into
// attributes, dropping a trailing unpaired key.
func attrsFromPairs(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}
