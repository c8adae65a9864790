// Package telemetry wires the runtime's ambient observability: an
// OpenTelemetry trace+metric pipeline exporting over OTLP/HTTP, exposed to
// the rest of the tree through core.Telemetry and core.MetricsRegistry so
// no domain package imports this one directly.
package telemetry

import (
	"context"
	"sync"

	"github.com/kolosalai/kolosal-agentd/core"
)

// Config selects the pipeline's identity and destination.
type Config struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string // OTLP/HTTP endpoint, host:port; defaults to localhost:4318
	SamplingRate float64
}

var (
	initMu   sync.Mutex
	provider *OTelProvider
)

// Initialize builds the OTLP pipeline from cfg and installs the framework
// metrics registry via core.SetMetricsRegistry, which in turn flips every
// ProductionLogger's metrics layer on. Safe to call once per process; a
// disabled config is a no-op.
func Initialize(cfg Config, logger core.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	initMu.Lock()
	defer initMu.Unlock()
	if provider != nil {
		return nil
	}

	p, err := NewOTelProvider(cfg.ServiceName, cfg.Endpoint, cfg.SamplingRate)
	if err != nil {
		return err
	}
	provider = p
	core.SetMetricsRegistry(NewFrameworkMetricsRegistry(p, logger))

	logger.Info("telemetry pipeline started", map[string]interface{}{
		"service":  cfg.ServiceName,
		"endpoint": cfg.Endpoint,
	})
	return nil
}

// Provider returns the active pipeline as a core.Telemetry, or nil if
// Initialize has not run.
func Provider() core.Telemetry {
	initMu.Lock()
	defer initMu.Unlock()
	if provider == nil {
		return nil
	}
	return provider
}

// Shutdown flushes and stops the pipeline, removing the global metrics
// registry. Returns the first flush error, if any.
func Shutdown(ctx context.Context) error {
	initMu.Lock()
	p := provider
	provider = nil
	initMu.Unlock()

	core.SetMetricsRegistry(nil)
	if p == nil {
		return nil
	}
	return p.Shutdown(ctx)
}
