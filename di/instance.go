package di

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
)

// State is the initialization state of an Instance.
type State int32

const (
	NotInitialized State = iota
	InFlight
	Initialized
)

func (s State) String() string {
	switch s {
	case NotInitialized:
		return "not_initialized"
	case InFlight:
		return "in_flight"
	case Initialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Instance is the runtime object for a Definition together with its
// resolved dependencies and initialization state.
type Instance struct {
	def       *Definition
	value     any
	deps      []*Instance
	singleton bool

	mu    sync.Mutex
	state State
	calls singleflight.Group
}

func newInstance(ctx context.Context, def *Definition, deps []*Instance, singleton bool) (*Instance, error) {
	values := make(Deps, len(deps))
	for i, dep := range deps {
		values[i] = dep.value
	}
	value, err := construct(ctx, def, values)
	if err != nil {
		return nil, errors.ConstructionFailed(def.name, err)
	}
	logger.Get("di").Debug("Service constructed", logger.Fields(
		logger.FieldService, def.name,
		"dependencies", len(deps),
		"singleton", singleton,
	))
	return &Instance{def: def, value: value, deps: deps, singleton: singleton}, nil
}

// construct runs the constructor, turning a panic into an error.
func construct(ctx context.Context, def *Definition, values Deps) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return def.construct(ctx, values)
}

// Definition returns the definition this instance was built from.
func (i *Instance) Definition() *Definition { return i.def }

// Value returns the constructed service value.
func (i *Instance) Value() any { return i.value }

// Singleton reports whether the instance is memoized by a registry. Instances
// of unregistered definitions are built fresh on every resolution.
func (i *Instance) Singleton() bool { return i.singleton }

// Dependencies returns the resolved dependency instances in declared order.
func (i *Instance) Dependencies() []*Instance {
	out := make([]*Instance, len(i.deps))
	copy(out, i.deps)
	return out
}

// State returns the current initialization state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
	logger.Get("di").Debug("Instance state changed", logger.Fields(
		logger.FieldService, i.def.name,
		logger.FieldState, s.String(),
	))
}

// Init initializes the dependencies and then the instance itself.
//
// Concurrent callers share one in-flight run and observe the same result.
// The run is detached from the caller's cancellation: a caller whose ctx
// ends stops waiting with ctx.Err() while the run goes on for the others.
// Context values still flow into the init bodies. Once Init succeeds later
// calls return immediately. When any init body in the chain fails the
// in-flight slot is cleared and the state goes back to NotInitialized, so a
// later Init retries.
func (i *Instance) Init(ctx context.Context) error {
	if i.State() == Initialized {
		return nil
	}
	runCtx := context.WithoutCancel(ctx)
	ch := i.calls.DoChan("init", func() (any, error) {
		// A caller may arrive just after a previous run finished.
		if i.State() == Initialized {
			return nil, nil
		}
		i.setState(InFlight)
		if err := i.runInit(runCtx); err != nil {
			i.setState(NotInitialized)
			return nil, err
		}
		i.setState(Initialized)
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runInit waits for every dependency's Init, then runs the own init body.
// Dependencies initialize concurrently; the first failure is returned as is.
func (i *Instance) runInit(ctx context.Context) error {
	var g errgroup.Group
	for _, dep := range i.deps {
		g.Go(func() error { return dep.Init(ctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := i.callInit(ctx); err != nil {
		return errors.InitializationFailed(i.def.name, err)
	}
	return nil
}

// callInit runs the own init body, if any. A panicking body fails like one
// returning an error.
func (i *Instance) callInit(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	body := i.def.initBody(i.value)
	if body == nil {
		return nil
	}
	return body(ctx)
}
