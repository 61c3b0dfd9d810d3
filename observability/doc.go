// Package observability provides OpenTelemetry tracing and metrics for
// event dispatch, plus service health aggregation.
//
// Setup installs OTLP/HTTP tracer and meter providers as the otel globals:
//
//	tel, err := observability.Setup(ctx, observability.DefaultTelemetryConfig("my-service"))
//	defer tel.Shutdown(ctx)
//
// Each listener invocation is wrapped in a DispatchContext which opens a
// "dispatch.handle" span and records the dispatch.* instruments:
//
//	metrics, err := observability.NewMetrics(observability.Meter("my-service"))
//	dc := observability.NewDispatchContext(eventID, "orders", "billing", "OnOrder", metrics)
//	ctx, span := dc.StartSpan(ctx, tracer)
//	dc.End(ctx, span, observability.StatusOK, "", nil)
//
// CheckHealth folds component health into one service status.
package observability
