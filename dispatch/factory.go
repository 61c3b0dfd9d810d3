package dispatch

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/kbukum/eventkit/di"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/observability"
	"github.com/kbukum/eventkit/params"
)

const instrumentationName = "github.com/kbukum/eventkit/dispatch"

// Factory creates dispatchers that share one container and one parameter
// registry.
type Factory struct {
	container *di.Container
	params    *params.Registry
	tracer    trace.Tracer
	meter     metric.Meter
	metrics   *observability.Metrics
	log       *logger.Logger
	noMetrics bool
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithTracer sets the tracer for dispatch spans.
func WithTracer(t trace.Tracer) FactoryOption {
	return func(f *Factory) { f.tracer = t }
}

// WithMeter sets the meter used to create dispatch instruments.
func WithMeter(m metric.Meter) FactoryOption {
	return func(f *Factory) { f.meter = m }
}

// WithoutTracing disables dispatch spans.
func WithoutTracing() FactoryOption {
	return func(f *Factory) { f.tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName) }
}

// WithoutMetrics disables dispatch metrics.
func WithoutMetrics() FactoryOption {
	return func(f *Factory) { f.noMetrics = true }
}

// WithFactoryLogger sets the factory's logger.
func WithFactoryLogger(l *logger.Logger) FactoryOption {
	return func(f *Factory) { f.log = l }
}

// NewFactory creates a dispatch factory. Tracer and meter default to the
// global OpenTelemetry providers.
func NewFactory(container *di.Container, registry *params.Registry, opts ...FactoryOption) (*Factory, error) {
	f := &Factory{container: container, params: registry}
	for _, opt := range opts {
		opt(f)
	}
	if f.container == nil {
		f.container = di.NewContainer()
	}
	if f.params == nil {
		f.params = params.NewRegistry(nil)
	}
	if f.tracer == nil {
		f.tracer = observability.Tracer(instrumentationName)
	}
	if f.log == nil {
		f.log = logger.Get("dispatch")
	}
	if !f.noMetrics {
		if f.meter == nil {
			f.meter = observability.Meter(instrumentationName)
		}
		m, err := observability.NewMetrics(f.meter)
		if err != nil {
			return nil, err
		}
		f.metrics = m
	}
	return f, nil
}

// Container returns the container services are resolved from.
func (f *Factory) Container() *di.Container { return f.container }

// Params returns the parameter registry.
func (f *Factory) Params() *params.Registry { return f.params }

// CreateDispatcher creates a dispatcher with a fresh namespace. Two
// dispatchers never share bindings, even when created with the same name.
func (f *Factory) CreateDispatcher(name string) *Dispatcher {
	return &Dispatcher{
		name:    name,
		ns:      f.params.CreateNamespace(name),
		factory: f,
		log:     f.log.WithFields(logger.Fields(logger.FieldCategory, name)),
	}
}
