package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dispatch statuses.
const (
	StatusOK       = "ok"
	StatusFiltered = "filtered"
	StatusError    = "error"
)

// DispatchContext holds observability context for one listener invocation.
type DispatchContext struct {
	EventID   string
	Category  string
	Service   string
	Method    string
	StartTime time.Time
	Metrics   *Metrics
}

// NewDispatchContext creates a new dispatch context.
// If metrics is nil, metric recording is silently skipped.
func NewDispatchContext(eventID, category, service, method string, metrics *Metrics) *DispatchContext {
	return &DispatchContext{
		EventID:   eventID,
		Category:  category,
		Service:   service,
		Method:    method,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

type dispatchContextKey struct{}

// WithDispatchContext stores a DispatchContext in the context.
func WithDispatchContext(ctx context.Context, dc *DispatchContext) context.Context {
	return context.WithValue(ctx, dispatchContextKey{}, dc)
}

// DispatchContextFromContext retrieves the DispatchContext from context, or nil.
func DispatchContextFromContext(ctx context.Context) *DispatchContext {
	if dc, ok := ctx.Value(dispatchContextKey{}).(*DispatchContext); ok {
		return dc
	}
	return nil
}

// StartSpan starts the dispatch span on tracer and records the start metric.
func (dc *DispatchContext) StartSpan(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, SpanDispatch, trace.WithAttributes(
		attribute.String(AttrEventID, dc.EventID),
		attribute.String(AttrCategory, dc.Category),
		attribute.String(AttrServiceName, dc.Service),
		attribute.String(AttrMethodName, dc.Method),
	))
	if dc.Metrics != nil {
		dc.Metrics.RecordDispatchStart(ctx)
	}
	return WithDispatchContext(ctx, dc), span
}

// End ends the span and records the outcome. code is the error code when
// status is StatusError.
func (dc *DispatchContext) End(ctx context.Context, span trace.Span, status, code string, err error) {
	duration := dc.Duration()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String(AttrErrorCode, code),
			attribute.String(AttrErrorMessage, err.Error()),
		)
	}
	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	if dc.Metrics == nil {
		return
	}
	switch status {
	case StatusFiltered:
		dc.Metrics.RecordFiltered(ctx, dc.Category, dc.Service)
	case StatusError:
		dc.Metrics.RecordError(ctx, code, dc.Category)
	}
	dc.Metrics.RecordDispatchEnd(ctx, dc.Category, dc.Service, dc.Method, status, duration)
}

// Duration returns the elapsed time since the dispatch started.
func (dc *DispatchContext) Duration() time.Duration {
	return time.Since(dc.StartTime)
}
