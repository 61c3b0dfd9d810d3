package di

import (
	"context"
	"sync"

	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
)

// Factory is the memoizing construction thunk stored per registered
// definition. The first successful call constructs the instance; every later
// call returns it and ignores the dependencies passed in. Construction
// errors are not cached.
type Factory struct {
	def      *Definition
	mu       sync.Mutex
	instance *Instance
}

// Definition returns the definition the factory builds.
func (f *Factory) Definition() *Definition { return f.def }

// Cached returns the memoized instance, if it was constructed already.
func (f *Factory) Cached() (*Instance, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instance, f.instance != nil
}

// Instance returns the singleton, constructing it from deps on first use.
// created reports whether this call constructed it.
func (f *Factory) Instance(ctx context.Context, deps []*Instance) (inst *Instance, created bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.instance != nil {
		return f.instance, false, nil
	}
	inst, err = newInstance(ctx, f.def, deps, true)
	if err != nil {
		return nil, false, err
	}
	f.instance = inst
	return inst, true, nil
}

// Registry maps service definitions to their singleton factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[*Definition]*Factory
	order     []*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[*Definition]*Factory)}
}

// Register adds def. Registering the same definition twice is an error.
func (r *Registry) Register(def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[def]; exists {
		return errors.AlreadyRegistered(def.name)
	}
	r.factories[def] = &Factory{def: def}
	r.order = append(r.order, def)

	logger.Get("di").Debug("Service registered", logger.Fields(
		logger.FieldService, def.name,
		"dependencies", len(def.deps),
	))
	return nil
}

// Lookup returns the factory for def.
func (r *Registry) Lookup(def *Definition) (*Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[def]
	return f, ok
}

// Definitions returns registered definitions in registration order.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, len(r.order))
	copy(out, r.order)
	return out
}
