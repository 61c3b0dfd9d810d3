package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/di"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/observability"
	"github.com/kbukum/eventkit/params"
)

// App is the composition root of an event-driven service. It owns the
// service container, the dispatch factory, the configured event sources
// and the component registry, and runs them through one lifecycle.
// The type parameter C is the config type, which must satisfy the Config interface.
//
// Example:
//
//	app, err := bootstrap.NewApp(&myConfig)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*MyConfig]) error {
//	    orders, err := a.Category("orders", "orders-topic")
//	    ...
//	    return orders.Listen(ctx, billingDef, "OnOrder")
//	})
//	app.Run(context.Background())
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Container  *di.Container
	Params     *params.Registry
	Dispatch   *dispatch.Factory
	Components *component.Registry
	Logger     *logger.Logger
	Summary    *Summary

	sources     map[string]SourceComponent
	sourceOrder []string

	gracefulTimeout time.Duration
	onConfigure     []func(ctx context.Context, app *App[C]) error

	onStart []Hook
	onReady []Hook
	onStop  []Hook

	shutdownTelemetry []func(ctx context.Context) error
}

// NewApp creates a new application instance from a typed config.
// It applies defaults, validates the config, initializes the logger and
// builds the configured event sources.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	base := cfg.GetServiceConfig()
	o := newOptions(opts)

	app := &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		Container:       o.container,
		Params:          o.params,
		sources:         make(map[string]SourceComponent),
		gracefulTimeout: o.gracefulTimeout,
	}

	// Logger: use custom if provided, otherwise init from config.
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(&base.Logging)
		app.Logger = logger.GetGlobalLogger()
	}
	logger.RegisterComponents(app.Logger, "component", "di", "dispatch", "timer", "topic", "filewatch", "kafka", "redis")
	app.Components = component.NewRegistry(component.WithStopTimeout(app.gracefulTimeout))

	if app.Container == nil {
		app.Container = di.NewContainer()
	}
	if app.Params == nil {
		app.Params = params.NewRegistry(nil)
	}

	var factoryOpts []dispatch.FactoryOption
	if base.Dispatch.DisableMetrics {
		factoryOpts = append(factoryOpts, dispatch.WithoutMetrics())
	}
	if base.Dispatch.DisableTracing {
		factoryOpts = append(factoryOpts, dispatch.WithoutTracing())
	}
	factory, err := dispatch.NewFactory(app.Container, app.Params, factoryOpts...)
	if err != nil {
		return nil, fmt.Errorf("dispatch factory: %w", err)
	}
	app.Dispatch = factory

	sources, err := buildSources(base.Sources)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		if err := app.AddSource(s); err != nil {
			return nil, err
		}
	}

	app.Summary = NewSummary(base.Name, base.Version)
	if o.summaryOut != nil {
		app.Summary.SetOutput(o.summaryOut)
	}
	return app, nil
}

// Register registers service definitions with the container.
func (a *App[C]) Register(defs ...*di.Definition) error {
	return a.Container.Register(defs...)
}

// RegisterComponent adds a component to the application's registry.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// OnConfigure registers a callback to run during the configure phase.
// Use this to register services and attach listeners to categories.
func (a *App[C]) OnConfigure(fn func(ctx context.Context, app *App[C]) error) {
	a.onConfigure = append(a.onConfigure, fn)
}

// Health aggregates the health of every registered component.
func (a *App[C]) Health(ctx context.Context) *observability.ServiceHealth {
	return observability.CheckHealth(ctx, a.Name, a.Version, a.Components)
}

// ReadyCheck verifies that all registered components are healthy.
func (a *App[C]) ReadyCheck(ctx context.Context) error {
	unhealthy := a.Health(ctx).Unhealthy()
	if len(unhealthy) == 0 {
		return nil
	}
	details := make([]string, len(unhealthy))
	for i, h := range unhealthy {
		details[i] = h.Name + "=" + string(h.Status)
		if h.Message != "" {
			details[i] += "(" + h.Message + ")"
		}
	}
	return fmt.Errorf("unhealthy components: %s", strings.Join(details, ", "))
}

// Run executes the full application lifecycle for long-running services:
// Telemetry → Configure → Start components → OnStart hooks → Init services →
// ReadyCheck → OnReady hooks → Block on signal → Graceful Shutdown.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.startup(ctx); err != nil {
		_ = a.stop()
		return err
	}

	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)

	return a.stop()
}

// RunTask executes a finite task with the full bootstrap lifecycle.
// Unlike Run(), it does not block on shutdown signals. It runs the task
// function and gracefully shuts down when the task completes or the context
// is canceled (e.g., via SIGINT/SIGTERM).
//
// Example:
//
//	app.RunTask(ctx, func(ctx context.Context) error {
//	    hub, _ := app.Topic("jobs")
//	    _, err := hub.Request(ctx, "jobs.reindex", nil)
//	    return err
//	})
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.startup(ctx); err != nil {
		_ = a.stop()
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("Received signal, canceling task", logger.Fields("signal", sig.String()))
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)

	if stopErr := a.stop(); stopErr != nil {
		if taskErr != nil {
			return taskErr
		}
		return stopErr
	}

	return taskErr
}

// startup performs the common initialization sequence shared by Run and RunTask.
func (a *App[C]) startup(ctx context.Context) error {
	start := time.Now()

	a.Logger.Info("Starting application", logger.Fields(
		"name", a.Name,
		"version", a.Version,
	))

	if err := a.initTelemetry(ctx); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	// Phase 1: Configure. Services and listeners are declared before
	// anything starts so no event is delivered to a half-built category.
	if err := a.configure(ctx); err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	// Phase 2: Start components, sources last.
	if err := a.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}

	// Phase 3: Eagerly initialize registered services.
	if err := a.Container.InitAll(ctx); err != nil {
		return fmt.Errorf("service initialization failed: %w", err)
	}

	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}

	if err := runHooks(ctx, a.onReady); err != nil {
		return fmt.Errorf("onReady hook failed: %w", err)
	}

	elapsed := time.Since(start)
	a.Logger.Info("Application started", logger.DurationFields("startup", elapsed))
	a.Summary.SetStartupDuration(elapsed)
	a.DisplaySummary()

	return nil
}

// initTelemetry installs the OTLP trace and metric providers when enabled.
// Dispatch picks them up through the global providers.
func (a *App[C]) initTelemetry(ctx context.Context) error {
	base := a.Cfg.GetServiceConfig()
	tc := base.Telemetry
	if !tc.Enabled {
		return nil
	}

	tel, err := observability.Setup(ctx, observability.TelemetryConfig{
		ServiceName:    base.Name,
		ServiceVersion: base.Version,
		Environment:    base.Environment,
		Endpoint:       tc.Endpoint,
		Insecure:       tc.Insecure,
		SampleRate:     tc.SampleRate,
		Interval:       tc.MetricInterval,
	})
	if err != nil {
		return err
	}
	a.shutdownTelemetry = append(a.shutdownTelemetry, tel.Shutdown)
	return nil
}

// initialize starts all registered components, then the sources.
func (a *App[C]) initialize(ctx context.Context) error {
	a.Logger.Info("Starting components")

	if err := a.registerSources(); err != nil {
		return err
	}
	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start components: %w", err)
	}

	a.Logger.Info("All components started", logger.Fields("sources", len(a.sourceOrder)))
	return nil
}

// DisplaySummary prints the startup summary. It collects sources,
// categories, services and health from the registry and container.
func (a *App[C]) DisplaySummary() {
	a.Summary.DisplaySummary(a.Components, a.Container)
}

// configure runs registered configuration callbacks.
func (a *App[C]) configure(ctx context.Context) error {
	if len(a.onConfigure) == 0 {
		return nil
	}

	a.Logger.Info("Running configuration callbacks", logger.Fields("count", len(a.onConfigure)))

	for _, fn := range a.onConfigure {
		if err := fn(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// WaitForSignal blocks until an OS interrupt/term signal or context cancellation.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal, graceful shutdown starting", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// Shutdown performs graceful shutdown. Use when managing your own lifecycle.
func (a *App[C]) Shutdown(ctx context.Context) error {
	return a.stop()
}

// stop gracefully shuts down within the graceful timeout: OnStop hooks,
// components in reverse order (sources first), services, then telemetry.
// Every step runs; the errors are combined.
func (a *App[C]) stop() error {
	a.Logger.Info("Shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs error

	if err := runAllHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.Fields(logger.FieldError, err.Error()))
		errs = multierr.Append(errs, err)
	}

	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Component shutdown completed with errors", logger.Fields(logger.FieldError, err.Error()))
		errs = multierr.Append(errs, err)
	}

	if err := a.Container.Close(); err != nil {
		a.Logger.Error("Service close error", logger.Fields(logger.FieldError, err.Error()))
		errs = multierr.Append(errs, err)
	}

	for i := len(a.shutdownTelemetry) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.shutdownTelemetry[i](ctx))
	}
	a.shutdownTelemetry = nil

	a.Logger.Info("Application shutdown complete")
	return errs
}
