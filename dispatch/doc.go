// Package dispatch turns service methods into event listeners.
//
// A Factory is created once per process over a di.Container and a
// params.Registry. Each event category creates its own Dispatcher, which
// owns a fresh parameter namespace. Listen wraps a method of a registered
// service into a Handler that, for every event:
//
//  1. fails with NOT_REGISTERED when the service is not registered,
//  2. runs the optional filter and stops when it declines the payload,
//  3. resolves the singleton and waits for its init chain,
//  4. builds the call arguments from the dispatcher's bindings,
//  5. calls the method and returns its result.
//
// The filter runs before resolution, so services that are not interested in
// an event are never constructed for it.
//
//	f, _ := dispatch.NewFactory(container, params.NewRegistry(nil))
//	ticks := dispatch.NewCategory(f, "timer", timerSource)
//	err := ticks.Listen(ctx, Reporter, "OnTick",
//	    dispatch.WithArgs(params.Key(0, "Seq")),
//	    dispatch.WithFilter(func(ctx context.Context, p any) (bool, error) {
//	        return p.(timer.Tick).Seq%10 == 0, nil
//	    }),
//	)
//
// WithBulkhead caps concurrent calls of one listener and WithRetry repeats
// steps 3 to 5 when they fail with a retryable error, such as a failed init.
// The filter is not rerun on retry.
//
// If a method's first parameter is a context.Context it receives the
// dispatch context and binding indexes refer to the parameters after it.
package dispatch
