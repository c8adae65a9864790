package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kolosalai/kolosal-agentd/core"
)

// OTelProvider implements core.Telemetry over the OpenTelemetry SDK.
// Traces and metrics export over OTLP/HTTP with batching; instruments are
// created lazily and cached per metric name.
type OTelProvider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram

	shutdownOnce sync.Once
}

// NewOTelProvider sets up the complete pipeline: OTLP/HTTP exporters for
// traces and metrics, batched, attributed to serviceName. An empty endpoint
// falls back to localhost:4318. samplingRate in (0,1) enables ratio-based
// trace sampling; anything else samples everything.
func NewOTelProvider(serviceName, endpoint string, samplingRate float64) (*OTelProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	ctx := context.Background()
	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter for %s: %w", endpoint, err)
	}
	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating metric exporter for %s: %w", endpoint, err)
	}

	sampler := sdktrace.AlwaysSample()
	if samplingRate > 0 && samplingRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(samplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &OTelProvider{
		tracer:         tp.Tracer(serviceName),
		meter:          mp.Meter(serviceName),
		traceProvider:  tp,
		metricProvider: mp,
		counters:       make(map[string]metric.Float64Counter),
		gauges:         make(map[string]metric.Float64Gauge),
		histograms:     make(map[string]metric.Float64Histogram),
	}, nil
}

// StartSpan implements core.Telemetry.
func (o *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry, recording value into a histogram
// named name.
func (o *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	o.recordHistogram(context.Background(), name, value, attrs)
}

func (o *OTelProvider) addCounter(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) {
	o.mu.Lock()
	inst, ok := o.counters[name]
	if !ok {
		var err error
		inst, err = o.meter.Float64Counter(name)
		if err != nil {
			o.mu.Unlock()
			return
		}
		o.counters[name] = inst
	}
	o.mu.Unlock()
	inst.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (o *OTelProvider) recordGauge(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) {
	o.mu.Lock()
	inst, ok := o.gauges[name]
	if !ok {
		var err error
		inst, err = o.meter.Float64Gauge(name)
		if err != nil {
			o.mu.Unlock()
			return
		}
		o.gauges[name] = inst
	}
	o.mu.Unlock()
	inst.Record(ctx, value, metric.WithAttributes(attrs...))
}

func (o *OTelProvider) recordHistogram(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) {
	o.mu.Lock()
	inst, ok := o.histograms[name]
	if !ok {
		var err error
		inst, err = o.meter.Float64Histogram(name)
		if err != nil {
			o.mu.Unlock()
			return
		}
		o.histograms[name] = inst
	}
	o.mu.Unlock()
	inst.Record(ctx, value, metric.WithAttributes(attrs...))
}

// Shutdown flushes both providers. Safe to call more than once.
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	var err error
	o.shutdownOnce.Do(func() {
		if terr := o.traceProvider.Shutdown(ctx); terr != nil {
			err = terr
		}
		if merr := o.metricProvider.Shutdown(ctx); merr != nil && err == nil {
			err = merr
		}
	})
	return err
}

// otelSpan adapts an OpenTelemetry span to core.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
