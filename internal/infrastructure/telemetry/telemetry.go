// Package telemetry installs the OpenTelemetry tracer and meter providers.
// Spans are written to the zap logger at debug level. Counters are collected
// on demand and logged when the process shuts down.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// DefaultServiceVersion is reported when no version is configured
const DefaultServiceVersion = "unknown"

// Config holds telemetry configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Enabled installs the SDK providers. When false the global no-op providers stay in place.
	Enabled bool
}

// Option adds a span processor or metric reader
type Option func(*options)

type options struct {
	processors []sdktrace.SpanProcessor
	readers    []sdkmetric.Reader
}

// WithSpanProcessor registers an additional span processor
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) {
		o.processors = append(o.processors, p)
	}
}

// WithMetricReader registers an additional metric reader
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) {
		o.readers = append(o.readers, r)
	}
}

// Telemetry owns the installed providers
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
	logger         *zap.Logger
}

// Setup creates the providers and installs them globally
func Setup(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) (*Telemetry, error) {
	t := &Telemetry{logger: logger}
	if !cfg.Enabled {
		logger.Info("Telemetry disabled")
		return t, nil
	}

	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = DefaultServiceVersion
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(&logProcessor{logger: logger}),
	}
	for _, p := range o.processors {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(p))
	}
	t.tracerProvider = sdktrace.NewTracerProvider(traceOpts...)

	t.reader = sdkmetric.NewManualReader()
	metricOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(t.reader),
	}
	for _, r := range o.readers {
		metricOpts = append(metricOpts, sdkmetric.WithReader(r))
	}
	t.meterProvider = sdkmetric.NewMeterProvider(metricOpts...)

	otel.SetTracerProvider(t.tracerProvider)
	otel.SetMeterProvider(t.meterProvider)

	logger.Info("Telemetry enabled",
		zap.String("service_name", cfg.ServiceName),
		zap.String("service_version", cfg.ServiceVersion))

	return t, nil
}

// Counters returns the current value of every int64 counter keyed by
// instrument name and attribute set
func (t *Telemetry) Counters(ctx context.Context) (map[string]int64, error) {
	counters := make(map[string]int64)
	if t.reader == nil {
		return counters, nil
	}

	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				counters[counterKey(m.Name, dp.Attributes)] += dp.Value
			}
		}
	}
	return counters, nil
}

// counterKey renders name{k=v,...}
func counterKey(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}
	return name + "{" + string(attrs.Encoded(attribute.DefaultEncoder())) + "}"
}

// Shutdown logs the final counter values and flushes the providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tracerProvider == nil {
		return nil
	}

	if counters, err := t.Counters(ctx); err == nil {
		for key, value := range counters {
			t.logger.Info("Counter", zap.String("name", key), zap.Int64("value", value))
		}
	}

	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}

// logProcessor writes finished spans to the logger
type logProcessor struct {
	logger *zap.Logger
}

func (p *logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !p.logger.Core().Enabled(zap.DebugLevel) {
		return
	}

	fields := []zap.Field{
		zap.String("span", s.Name()),
		zap.String("trace_id", s.SpanContext().TraceID().String()),
		zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
	}
	for _, kv := range s.Attributes() {
		fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
	}
	if status := s.Status(); status.Code == codes.Error {
		fields = append(fields, zap.String("error", status.Description))
	}
	p.logger.Debug("Span ended", fields...)
}

func (p *logProcessor) Shutdown(context.Context) error { return nil }

func (p *logProcessor) ForceFlush(context.Context) error { return nil }
