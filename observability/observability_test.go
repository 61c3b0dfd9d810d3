package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/eventkit/component"
)

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetricsNoop(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	metrics.RecordDispatchStart(ctx)
	metrics.RecordDispatchEnd(ctx, "orders", "billing", "OnOrder", StatusOK, 100*time.Millisecond)
	metrics.RecordFiltered(ctx, "orders", "billing")
	metrics.RecordError(ctx, "LISTENER_ERROR", "orders")
}

// collect returns the sum data points of the named counter.
func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				return sum.DataPoints
			}
		}
	}
	return nil
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return metrics, reader
}

func TestDispatchContextRecordsOutcome(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		code     string
		err      error
		filtered int64
		errors   int64
	}{
		{"ok", StatusOK, "", nil, 0, 0},
		{"filtered", StatusFiltered, "", nil, 1, 0},
		{"error", StatusError, "LISTENER_ERROR", fmt.Errorf("boom"), 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics, reader := newTestMetrics(t)
			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
			defer tp.Shutdown(context.Background())

			dc := NewDispatchContext("evt-1", "orders", "billing", "OnOrder", metrics)
			ctx, span := dc.StartSpan(context.Background(), tp.Tracer("test"))
			if DispatchContextFromContext(ctx) != dc {
				t.Fatal("expected dispatch context in span context")
			}
			dc.End(ctx, span, tc.status, tc.code, tc.err)

			total := collect(t, reader, MetricDispatchTotal)
			if len(total) != 1 || total[0].Value != 1 {
				t.Fatalf("expected one dispatch recorded, got %+v", total)
			}
			if v, _ := total[0].Attributes.Value(attribute.Key("status")); v.AsString() != tc.status {
				t.Errorf("expected status %q, got %q", tc.status, v.AsString())
			}
			if got := sumOf(collect(t, reader, MetricDispatchFiltered)); got != tc.filtered {
				t.Errorf("expected %d filtered, got %d", tc.filtered, got)
			}
			if got := sumOf(collect(t, reader, MetricDispatchErrors)); got != tc.errors {
				t.Errorf("expected %d errors, got %d", tc.errors, got)
			}
			if got := sumOf(collect(t, reader, MetricDispatchActive)); got != 0 {
				t.Errorf("expected no active dispatches, got %d", got)
			}

			spans := exporter.GetSpans()
			if len(spans) != 1 || spans[0].Name != SpanDispatch {
				t.Fatalf("expected one %s span, got %+v", SpanDispatch, spans)
			}
			if tc.err != nil && spans[0].Status.Code != codes.Error {
				t.Errorf("expected error status, got %v", spans[0].Status.Code)
			}
		})
	}
}

func sumOf(points []metricdata.DataPoint[int64]) int64 {
	var n int64
	for _, p := range points {
		n += p.Value
	}
	return n
}

func TestDispatchContextNilMetrics(t *testing.T) {
	dc := NewDispatchContext("evt-1", "orders", "billing", "OnOrder", nil)
	ctx, span := dc.StartSpan(context.Background(), Tracer("test"))
	dc.End(ctx, span, StatusError, "LISTENER_ERROR", fmt.Errorf("boom"))
}

func TestDispatchContextFromContextNotSet(t *testing.T) {
	if DispatchContextFromContext(context.Background()) != nil {
		t.Error("expected nil when dispatch context not set")
	}
}

func TestDispatchContextDuration(t *testing.T) {
	dc := NewDispatchContext("evt-1", "orders", "billing", "OnOrder", nil)
	dc.StartTime = time.Now().Add(-50 * time.Millisecond)

	duration := dc.Duration()
	if duration < 45*time.Millisecond || duration > 200*time.Millisecond {
		t.Errorf("expected duration around 50ms, got %v", duration)
	}
}

func TestNewServiceHealth(t *testing.T) {
	sh := NewServiceHealth("my-service", "1.0.0")

	if sh.Service != "my-service" {
		t.Errorf("expected Service 'my-service', got %s", sh.Service)
	}
	if sh.Status != HealthStatusUp {
		t.Errorf("expected Status 'up', got %s", sh.Status)
	}
}

func TestServiceHealth_AddComponent(t *testing.T) {
	sh := NewServiceHealth("my-service", "1.0.0")

	sh.AddComponent(component.Health{Name: "timer", Status: component.StatusHealthy})
	if sh.Status != HealthStatusUp {
		t.Errorf("expected status 'up' after healthy component, got %s", sh.Status)
	}

	sh.AddComponent(component.Health{Name: "topic", Status: component.StatusDegraded, Message: "dropping"})
	if sh.Status != HealthStatusDegraded {
		t.Errorf("expected status 'degraded', got %s", sh.Status)
	}

	sh.AddComponent(component.Health{Name: "filewatch", Status: component.StatusUnhealthy})
	if sh.Status != HealthStatusDown {
		t.Errorf("expected status 'down', got %s", sh.Status)
	}

	sh.AddComponent(component.Health{Name: "late", Status: component.StatusDegraded})
	if sh.Status != HealthStatusDown {
		t.Errorf("expected 'down' not overridden by 'degraded', got %s", sh.Status)
	}
	if len(sh.Unhealthy()) != 3 {
		t.Errorf("expected 3 unhealthy components, got %d", len(sh.Unhealthy()))
	}
}

type staticChecker []component.Health

func (s staticChecker) HealthAll(context.Context) []component.Health { return s }

func TestCheckHealth(t *testing.T) {
	sh := CheckHealth(context.Background(), "svc", "1.0.0", staticChecker{
		{Name: "a", Status: component.StatusHealthy},
		{Name: "b", Status: component.StatusDegraded},
	})
	if sh.Status != HealthStatusDegraded {
		t.Errorf("expected degraded, got %s", sh.Status)
	}
	if len(sh.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(sh.Components))
	}
}

func TestCheckHealthRegistry(t *testing.T) {
	reg := component.NewRegistry()
	sh := CheckHealth(context.Background(), "svc", "1.0.0", reg)
	if sh.Status != HealthStatusUp || len(sh.Components) != 0 {
		t.Errorf("expected empty healthy report, got %+v", sh)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tc := range tests {
		if got := Sampler(tc.rate).Description(); got != tc.want {
			t.Errorf("Sampler(%v) = %q, want %q", tc.rate, got, tc.want)
		}
	}
}

func TestTracerAndMeter(t *testing.T) {
	if Tracer("test-tracer") == nil {
		t.Fatal("expected non-nil tracer")
	}
	if Meter("test-meter") == nil {
		t.Fatal("expected non-nil meter")
	}
}

func TestSetupInstallsGlobalProviders(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	}()

	// Instruments obtained before Setup delegate once providers are installed.
	tracer := Tracer("early")
	metrics, err := NewMetrics(Meter("early"))
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	tel, err := Setup(context.Background(), DefaultTelemetryConfig("test-service"),
		WithSpanExporter(spans), WithMetricReader(reader))
	if err != nil {
		t.Skipf("Setup failed (resource schema conflict): %v", err)
	}

	ctx, span := tracer.Start(context.Background(), SpanFire)
	metrics.RecordFiltered(ctx, "orders", "billing")
	span.End()

	if sumOf(collect(t, reader, MetricDispatchFiltered)) != 1 {
		t.Error("expected the early meter to record through the installed provider")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := spans.GetSpans(); len(got) != 1 || got[0].Name != SpanFire {
		t.Errorf("expected one %s span after shutdown flush, got %v", SpanFire, got)
	}
}
