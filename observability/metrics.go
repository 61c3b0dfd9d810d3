package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricDispatchTotal    = "dispatch.total"
	MetricDispatchFiltered = "dispatch.filtered"
	MetricDispatchErrors   = "dispatch.errors"
	MetricDispatchDuration = "dispatch.duration"
	MetricDispatchActive   = "dispatch.active"
)

// Metrics holds the instruments recorded by event dispatch.
type Metrics struct {
	dispatchTotal    metric.Int64Counter
	dispatchFiltered metric.Int64Counter
	dispatchErrors   metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	dispatchActive   metric.Int64UpDownCounter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	dispatchTotal, err := meter.Int64Counter(MetricDispatchTotal,
		metric.WithDescription("Total number of handled events"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricDispatchTotal, err)
	}

	dispatchFiltered, err := meter.Int64Counter(MetricDispatchFiltered,
		metric.WithDescription("Events skipped by a listener filter"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricDispatchFiltered, err)
	}

	dispatchErrors, err := meter.Int64Counter(MetricDispatchErrors,
		metric.WithDescription("Dispatch errors by code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricDispatchErrors, err)
	}

	dispatchDuration, err := meter.Float64Histogram(MetricDispatchDuration,
		metric.WithDescription("Duration of listener invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricDispatchDuration, err)
	}

	dispatchActive, err := meter.Int64UpDownCounter(MetricDispatchActive,
		metric.WithDescription("Number of in-progress dispatches"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricDispatchActive, err)
	}

	return &Metrics{
		dispatchTotal:    dispatchTotal,
		dispatchFiltered: dispatchFiltered,
		dispatchErrors:   dispatchErrors,
		dispatchDuration: dispatchDuration,
		dispatchActive:   dispatchActive,
	}, nil
}

// RecordDispatchStart increments the active dispatch count.
func (m *Metrics) RecordDispatchStart(ctx context.Context) {
	m.dispatchActive.Add(ctx, 1)
}

// RecordDispatchEnd decrements active dispatches and records the completed one.
func (m *Metrics) RecordDispatchEnd(ctx context.Context, category, service, method, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("service", service),
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.dispatchActive.Add(ctx, -1)
	m.dispatchTotal.Add(ctx, 1, attrs)
	m.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("method", method),
	))
}

// RecordFiltered records an event a filter declined.
func (m *Metrics) RecordFiltered(ctx context.Context, category, service string) {
	m.dispatchFiltered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("service", service),
	))
}

// RecordError records a dispatch error by code.
func (m *Metrics) RecordError(ctx context.Context, code, category string) {
	m.dispatchErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code),
		attribute.String("category", category),
	))
}
