package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kbukum/eventkit/di"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/observability"
	"github.com/kbukum/eventkit/params"
	"github.com/kbukum/eventkit/resilience"
)

// Handler is the runtime listener produced by Listen. It returns whatever
// the wrapped method returns.
type Handler func(ctx context.Context, payload any) (any, error)

// Filter decides whether a listener is interested in payload. It runs
// before the service is resolved.
type Filter func(ctx context.Context, payload any) (bool, error)

// ListenOption configures a listener.
type ListenOption func(*listener)

// WithFilter sets the listener's filter.
func WithFilter(fn Filter) ListenOption {
	return func(l *listener) { l.filter = fn }
}

// WithArgs binds payload values to the method's parameters in this
// dispatcher's namespace.
func WithArgs(bindings ...params.Binding) ListenOption {
	return func(l *listener) { l.bindings = append(l.bindings, bindings...) }
}

// WithRetry re-runs service resolution and the method call while they fail
// with a retryable error, such as a failed init.
func WithRetry(cfg resilience.RetryConfig) ListenOption {
	return func(l *listener) { l.retry = &cfg }
}

// WithBulkhead bounds concurrent calls of the listener's method.
func WithBulkhead(b *resilience.Bulkhead) ListenOption {
	return func(l *listener) { l.bulkhead = b }
}

type listener struct {
	def      *di.Definition
	method   string
	filter   Filter
	bindings []params.Binding
	retry    *resilience.RetryConfig
	bulkhead *resilience.Bulkhead
}

// Dispatcher is one event category's handle on the factory.
type Dispatcher struct {
	name    string
	ns      *params.Namespace
	factory *Factory
	log     *logger.Logger
}

// Name returns the dispatcher name.
func (d *Dispatcher) Name() string { return d.name }

// Namespace returns the dispatcher's parameter namespace. Bindings added
// here apply to every handler of this dispatcher.
func (d *Dispatcher) Namespace() *params.Namespace { return d.ns }

// Listen wraps def's method into a Handler. Bindings given with WithArgs are
// recorded immediately. Registration of def and existence of the method are
// checked when the handler runs, since the instance does not exist yet.
func (d *Dispatcher) Listen(def *di.Definition, method string, opts ...ListenOption) (Handler, error) {
	l := &listener{def: def, method: method}
	for _, opt := range opts {
		opt(l)
	}
	if len(l.bindings) > 0 {
		if err := d.ns.Bind(def, method, l.bindings...); err != nil {
			return nil, err
		}
	}

	d.log.Debug("Listener created", logger.Fields(
		logger.FieldService, def.Name(),
		logger.FieldMethod, method,
		"bindings", len(l.bindings),
		"filtered", l.filter != nil,
	))

	return func(ctx context.Context, payload any) (any, error) {
		return d.handle(ctx, l, payload)
	}, nil
}

func (d *Dispatcher) handle(ctx context.Context, l *listener, payload any) (any, error) {
	eventID, ok := logger.EventIDFromContext(ctx)
	if !ok {
		eventID = uuid.NewString()
		ctx = logger.ContextWithEventID(ctx, eventID)
	}

	dc := observability.NewDispatchContext(eventID, d.name, l.def.Name(), l.method, d.factory.metrics)
	ctx, span := dc.StartSpan(ctx, d.factory.tracer)

	result, status, err := d.run(ctx, l, payload)

	code := ""
	if err != nil {
		code = errorCode(err)
		d.log.WithContext(ctx).Debug("Listener failed", logger.Fields(
			logger.FieldService, l.def.Name(),
			logger.FieldMethod, l.method,
			logger.FieldError, err.Error(),
		))
	}
	dc.End(ctx, span, status, code, err)
	return result, err
}

func (d *Dispatcher) run(ctx context.Context, l *listener, payload any) (any, string, error) {
	accept, err := d.admit(ctx, l, payload)
	markStarted(ctx)
	if err != nil {
		return nil, observability.StatusError, err
	}
	if !accept {
		return nil, observability.StatusFiltered, nil
	}

	container := d.factory.container
	call := func(ctx context.Context) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, errors.InvocationFailed(l.method, r)
			}
		}()
		inst, err := container.ResolveInit(ctx, l.def)
		if err != nil {
			return nil, err
		}
		args := d.ns.BuildArguments(payload, l.def, l.method)
		return invoke(ctx, l.def.Name(), inst.Value(), l.method, args)
	}
	if l.bulkhead != nil {
		limited := call
		call = func(ctx context.Context) (any, error) {
			return resilience.ExecuteWithResult(ctx, l.bulkhead, limited)
		}
	}
	if l.retry != nil {
		once := call
		call = func(ctx context.Context) (any, error) {
			return resilience.Retry(ctx, *l.retry, once)
		}
	}

	result, err := call(ctx)
	if err != nil {
		return result, observability.StatusError, err
	}
	return result, observability.StatusOK, nil
}

// admit checks that def is registered and runs the filter. A panicking
// filter fails with FILTER_FAILED like a filter returning an error.
func (d *Dispatcher) admit(ctx context.Context, l *listener, payload any) (accept bool, err error) {
	if _, ok := d.factory.container.Lookup(l.def); !ok {
		return false, errors.NotRegistered(l.def.Name())
	}
	if l.filter == nil {
		return true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			accept, err = false, errors.FilterFailed(d.name, fmt.Errorf("panic: %v", r))
		}
	}()
	accept, err = l.filter(ctx, payload)
	if err != nil {
		return false, errors.FilterFailed(d.name, err)
	}
	return accept, nil
}

// errorCode labels err for metrics. Errors returned by the method itself
// carry no code.
func errorCode(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return string(appErr.Code)
	}
	return "LISTENER_ERROR"
}
