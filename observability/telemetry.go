package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/kbukum/eventkit/logger"
)

// TelemetryConfig describes where a process exports its spans and metrics.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP/HTTP collector as host:port.
	Endpoint string
	Insecure bool
	// SampleRate is the share of traces kept, from 0 to 1.
	SampleRate float64
	// Interval is the metric export period. Zero keeps the SDK default.
	Interval time.Duration
}

// DefaultTelemetryConfig points at a local collector and keeps every trace.
func DefaultTelemetryConfig(serviceName string) TelemetryConfig {
	return TelemetryConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		SampleRate:     1.0,
		Interval:       15 * time.Second,
	}
}

// SetupOption replaces an OTLP exporter.
type SetupOption func(*setupOptions)

type setupOptions struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Reader
}

// WithSpanExporter sends spans to e instead of the OTLP endpoint.
func WithSpanExporter(e sdktrace.SpanExporter) SetupOption {
	return func(o *setupOptions) { o.spans = e }
}

// WithMetricReader collects metrics through r instead of a periodic OTLP
// reader.
func WithMetricReader(r sdkmetric.Reader) SetupOption {
	return func(o *setupOptions) { o.metrics = r }
}

// Telemetry owns the tracer and meter providers installed by Setup.
type Telemetry struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Setup builds both providers for cfg and installs them, together with the
// W3C trace context propagator, as the otel globals. Tracers and meters
// obtained from the globals before Setup start delegating to them.
func Setup(ctx context.Context, cfg TelemetryConfig, opts ...SetupOption) (*Telemetry, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	spans := o.spans
	if spans == nil {
		topts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			topts = append(topts, otlptracehttp.WithInsecure())
		}
		if spans, err = otlptracehttp.New(ctx, topts...); err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
	}

	reader := o.metrics
	if reader == nil {
		mopts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			mopts = append(mopts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, mopts...)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("metric exporter: %w", err), spans.Shutdown(ctx))
		}
		var ropts []sdkmetric.PeriodicReaderOption
		if cfg.Interval > 0 {
			ropts = append(ropts, sdkmetric.WithInterval(cfg.Interval))
		}
		reader = sdkmetric.NewPeriodicReader(exporter, ropts...)
	}

	t := &Telemetry{
		Tracer: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(Sampler(cfg.SampleRate)),
		),
		Meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		),
	}
	otel.SetTracerProvider(t.Tracer)
	otel.SetMeterProvider(t.Meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Telemetry initialized", logger.Fields(
		"service", cfg.ServiceName,
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
	))
	return t, nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return multierr.Append(t.Tracer.Shutdown(ctx), t.Meter.Shutdown(ctx))
}

// Sampler maps a sample rate to a parent-independent SDK sampler.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns a tracer from the global provider.
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }

// Meter returns a meter from the global provider.
func Meter(name string) metric.Meter { return otel.Meter(name) }

// Span names.
const (
	SpanDispatch = "dispatch.handle"
	SpanFire     = "dispatch.fire"
)

// Span attribute keys.
const (
	AttrEventID      = "event.id"
	AttrCategory     = "event.category"
	AttrServiceName  = "service.name"
	AttrMethodName   = "method.name"
	AttrListeners    = "listeners"
	AttrDurationMs   = "duration_ms"
	AttrStatus       = "status"
	AttrErrorCode    = "error.code"
	AttrErrorMessage = "error.message"
)
