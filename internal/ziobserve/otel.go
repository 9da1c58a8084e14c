// Package ziobserve wires the Context's metrics registry and tracer onto
// OpenTelemetry, the same exporters and resource attribution the reference
// engine's observability package sets up for its own HTTP surface.
package ziobserve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config selects the OTLP endpoint and service identity reported in traces
// and metrics.
type Config struct {
	OTLPEndpoint string
	ServiceName  string
}

// Registry exposes an OTel meter, a tracer, and a per-stage duration
// histogram (RecordStage). It holds no StageMetrics snapshot; the in-memory
// snapshot lives in the pipeline package's Recorder.
type Registry struct {
	meter  metric.Meter
	tracer trace.Tracer

	stageDuration metric.Float64Histogram
}

// New builds a Registry. When cfg.OTLPEndpoint is empty, the registry still
// works: it uses OTel's no-op global providers, so stage instrumentation
// calls are always safe to make.
func New(ctx context.Context, cfg Config) (*Registry, func(context.Context) error, error) {
	shutdown := func(context.Context) error { return nil }

	if cfg.OTLPEndpoint != "" {
		sd, err := initExporters(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		shutdown = sd
	}

	meter := otel.Meter("zi")
	tracer := otel.Tracer("zi")

	hist, err := meter.Float64Histogram(
		"zi.pipeline.stage.duration_ms",
		metric.WithDescription("Duration of a single pipeline stage execution, in milliseconds"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("ziobserve: create stage histogram: %w", err)
	}

	return &Registry{meter: meter, tracer: tracer, stageDuration: hist}, shutdown, nil
}

func initExporters(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return nil, errors.New("ziobserve: otlp endpoint is required")
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithOS(),
	)
	if err != nil {
		return nil, fmt.Errorf("ziobserve: init resource: %w", err)
	}

	trExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("ziobserve: init trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(trExp), sdktrace.WithResource(res))

	mExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint), otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("ziobserve: init metrics exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(mExp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if err := host.Start(host.WithMeterProvider(mp)); err != nil {
		return nil, fmt.Errorf("ziobserve: start host metrics: %w", err)
	}

	return func(ctx context.Context) error {
		var first error
		if err := mp.Shutdown(ctx); err != nil {
			first = err
		}
		if err := tp.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
		return first
	}, nil
}

// RecordStage emits the OTel histogram sample for one pipeline stage
// execution, tagged with the stage name.
func (r *Registry) RecordStage(ctx context.Context, stage string, durationMs float64) {
	if r == nil {
		return
	}
	r.stageDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("stage", stage)))
}

// Tracer returns the registry's tracer for components that want to open
// their own spans (e.g. the version store around save/load).
func (r *Registry) Tracer() trace.Tracer {
	if r == nil {
		return otel.Tracer("zi")
	}
	return r.tracer
}
