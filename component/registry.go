package component

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
)

// DefaultStopTimeout bounds each component's Stop call.
const DefaultStopTimeout = 10 * time.Second

type entry struct {
	c       Component
	started bool
}

// Registry starts components in registration order and stops them in
// reverse.
type Registry struct {
	mu          sync.RWMutex
	entries     []*entry
	byName      map[string]*entry
	stopTimeout time.Duration
	log         *logger.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStopTimeout bounds each Stop call. Zero or less disables the bound.
func WithStopTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.stopTimeout = d }
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(l *logger.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:      make(map[string]*entry),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get("component")
	}
	return r
}

// Register appends c. Register categories before the sources that feed
// them so that sources start last and stop first.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, ok := r.byName[name]; ok {
		return errors.New(errors.ErrCodeAlreadyRegistered, fmt.Sprintf("component %q is already registered", name))
	}
	e := &entry{c: c}
	r.entries = append(r.entries, e)
	r.byName[name] = e

	r.log.Debug("Component registered", logger.Fields(logger.FieldComponent, name))
	return nil
}

// StartAll starts every component not yet started. It returns at the first
// failure and leaves the components started before it running; StopAll
// stops them.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.started {
			continue
		}
		name := e.c.Name()
		if err := e.c.Start(ctx); err != nil {
			r.log.Error("Component start failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			return fmt.Errorf("start %s: %w", name, err)
		}
		e.started = true
		r.log.Debug("Component started", logger.Fields(logger.FieldComponent, name))
	}
	r.log.Info("Components started", logger.Fields("count", len(r.entries)))
	return nil
}

// StopAll stops the started components in reverse order. Every one is
// stopped even when some fail; the errors are combined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.started {
			continue
		}
		name := e.c.Name()
		if err := r.stop(ctx, e.c); err != nil {
			r.log.Error("Component stop failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", name, err))
		} else {
			r.log.Debug("Component stopped", logger.Fields(logger.FieldComponent, name))
		}
		e.started = false
	}
	return errs
}

func (r *Registry) stop(ctx context.Context, c Component) error {
	if r.stopTimeout <= 0 {
		return c.Stop(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.stopTimeout)
	defer cancel()
	return c.Stop(ctx)
}

// HealthAll reports every component in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.c.Health(ctx))
	}
	return out
}

// Get returns the component registered under name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byName[name]; ok {
		return e.c
	}
	return nil
}

// Started reports whether the named component is running.
func (r *Registry) Started(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byName[name]
	return ok && e.started
}

// All returns the components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Component, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.c
	}
	return out
}
