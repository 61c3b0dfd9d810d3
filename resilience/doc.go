// Package resilience provides retry with exponential backoff and a
// bulkhead concurrency limit for listener invocations.
//
// Retry re-runs an operation while it fails with a retryable error, such
// as a service whose init failed and can be initialized again:
//
//	err := resilience.RetryFunc(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
//	    _, err := handler(ctx, payload)
//	    return err
//	})
//
// Bulkhead bounds concurrent calls:
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "mailer", MaxConcurrent: 4})
//	err := bh.Execute(ctx, send)
package resilience
