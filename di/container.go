package di

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/multierr"

	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
)

// Container is the composition root: it owns the service registry and
// resolves definitions into singleton instances.
type Container struct {
	registry *Registry
	log      *logger.Logger

	mu          sync.Mutex
	constructed []*Instance
}

// ContainerOption configures a Container.
type ContainerOption func(*Container)

// WithRegistry makes the container use an existing registry.
func WithRegistry(r *Registry) ContainerOption {
	return func(c *Container) { c.registry = r }
}

// WithLogger sets the container's logger.
func WithLogger(l *logger.Logger) ContainerOption {
	return func(c *Container) { c.log = l }
}

// NewContainer creates a container with an empty registry.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.log == nil {
		c.log = logger.Get("di")
	}
	return c
}

// Registry returns the container's service registry.
func (c *Container) Registry() *Registry { return c.registry }

// Register registers definitions in order, stopping at the first error.
func (c *Container) Register(defs ...*Definition) error {
	for _, def := range defs {
		if err := c.registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the factory for def.
func (c *Container) Lookup(def *Definition) (*Factory, bool) {
	return c.registry.Lookup(def)
}

// Resolve returns the instance for def, constructing its dependency graph on
// first use. Repeated calls for a registered definition return the same
// instance. An unregistered definition is constructed fresh on every call
// and gets no singleton guarantee. The instance is not initialized; call
// Init or use ResolveInit.
func (c *Container) Resolve(ctx context.Context, def *Definition) (*Instance, error) {
	return c.resolve(ctx, def, nil)
}

// ResolveInit resolves def and waits for its init chain.
func (c *Container) ResolveInit(ctx context.Context, def *Definition) (*Instance, error) {
	inst, err := c.Resolve(ctx, def)
	if err != nil {
		return nil, err
	}
	if err := inst.Init(ctx); err != nil {
		return nil, err
	}
	return inst, nil
}

func (c *Container) resolve(ctx context.Context, def *Definition, path []*Definition) (*Instance, error) {
	if slices.Contains(path, def) {
		return nil, errors.CircularDependency(names(append(path, def)))
	}

	factory, registered := c.registry.Lookup(def)
	if registered {
		if inst, ok := factory.Cached(); ok {
			return inst, nil
		}
	}

	path = append(path, def)
	deps := make([]*Instance, len(def.deps))
	for i, dep := range def.deps {
		inst, err := c.resolve(ctx, dep, path)
		if err != nil {
			return nil, err
		}
		deps[i] = inst
	}

	if !registered {
		c.log.Warn("Resolving unregistered service without singleton guarantee", logger.Fields(
			logger.FieldService, def.name,
		))
		return newInstance(ctx, def, deps, false)
	}

	inst, created, err := factory.Instance(ctx, deps)
	if err != nil {
		return nil, err
	}
	if created {
		c.mu.Lock()
		c.constructed = append(c.constructed, inst)
		c.mu.Unlock()
	}
	return inst, nil
}

// InitAll resolves and initializes every registered definition in
// registration order.
func (c *Container) InitAll(ctx context.Context) error {
	for _, def := range c.registry.Definitions() {
		if _, err := c.ResolveInit(ctx, def); err != nil {
			return err
		}
	}
	c.log.Info("All services initialized", logger.Fields("count", len(c.registry.Definitions())))
	return nil
}

// Close closes constructed singletons whose value has a Close() error
// method, in reverse construction order. Every closer runs; the errors are
// combined.
func (c *Container) Close() error {
	c.mu.Lock()
	instances := slices.Clone(c.constructed)
	c.mu.Unlock()

	var errs error
	for i := len(instances) - 1; i >= 0; i-- {
		closer, ok := instances[i].value.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			c.log.Error("Service close failed",
				logger.Fields(logger.FieldService, instances[i].def.name),
				logger.ErrorFields("close", err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// RegistrationInfo describes a registered service for introspection.
type RegistrationInfo struct {
	Name         string
	Dependencies []string
	Constructed  bool
	State        State
}

// Registrations returns info about all registered services in registration order.
func (c *Container) Registrations() []RegistrationInfo {
	defs := c.registry.Definitions()
	result := make([]RegistrationInfo, 0, len(defs))
	for _, def := range defs {
		info := RegistrationInfo{Name: def.name, Dependencies: names(def.deps)}
		if f, ok := c.registry.Lookup(def); ok {
			if inst, ok := f.Cached(); ok {
				info.Constructed = true
				info.State = inst.State()
			}
		}
		result = append(result, info)
	}
	return result
}

func names(defs []*Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.name
	}
	return out
}
