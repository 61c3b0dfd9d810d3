package di

import (
	"context"
	"fmt"
	"reflect"
)

// Initializer is implemented by service values that carry their own init body.
type Initializer interface {
	Init(ctx context.Context) error
}

// Deps holds resolved dependency values in declared order.
type Deps []any

// Dep returns the dependency at index i as T.
func Dep[T any](deps Deps, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(deps) {
		return zero, fmt.Errorf("di: dependency index %d out of range (have %d)", i, len(deps))
	}
	v, ok := deps[i].(T)
	if !ok {
		return zero, fmt.Errorf("di: dependency %d is %T, expected %T", i, deps[i], zero)
	}
	return v, nil
}

// Definition is the identity of a service eligible for singleton management.
// Definitions are compared by pointer.
type Definition struct {
	name      string
	typ       reflect.Type
	deps      []*Definition
	construct func(ctx context.Context, deps Deps) (any, error)
	initFn    func(ctx context.Context, value any) error
}

// Option configures a Definition.
type Option func(*Definition)

// DependsOn declares the ordered dependency list. The constructor receives
// the resolved values in the same order.
func DependsOn(defs ...*Definition) Option {
	return func(d *Definition) {
		d.deps = append(d.deps, defs...)
	}
}

// WithInit sets the service's init body. It takes precedence over an Init
// method on the value.
func WithInit[T any](fn func(ctx context.Context, v T) error) Option {
	return func(d *Definition) {
		d.initFn = func(ctx context.Context, value any) error {
			typed, ok := value.(T)
			if !ok {
				var zero T
				return fmt.Errorf("di: init for %s expects %T, got %T", d.name, zero, value)
			}
			return fn(ctx, typed)
		}
	}
}

// Define declares a service. It panics on a nil constructor or a nil
// dependency since both are programming errors caught at declaration time.
func Define[T any](name string, ctor func(ctx context.Context, deps Deps) (T, error), opts ...Option) *Definition {
	if ctor == nil {
		panic(fmt.Sprintf("di: nil constructor for %s", name))
	}
	d := &Definition{
		name: name,
		typ:  reflect.TypeOf((*T)(nil)).Elem(),
		construct: func(ctx context.Context, deps Deps) (any, error) {
			return ctor(ctx, deps)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	for i, dep := range d.deps {
		if dep == nil {
			panic(fmt.Sprintf("di: nil dependency %d for %s", i, name))
		}
	}
	return d
}

// Name returns the service name.
func (d *Definition) Name() string { return d.name }

// Type returns the static type produced by the constructor.
func (d *Definition) Type() reflect.Type { return d.typ }

// Dependencies returns a copy of the declared dependency list.
func (d *Definition) Dependencies() []*Definition {
	out := make([]*Definition, len(d.deps))
	copy(out, d.deps)
	return out
}

func (d *Definition) String() string { return d.name }

// initBody returns the init body for value, or nil when it has none.
func (d *Definition) initBody(value any) func(ctx context.Context) error {
	if d.initFn != nil {
		return func(ctx context.Context) error { return d.initFn(ctx, value) }
	}
	if in, ok := value.(Initializer); ok {
		return in.Init
	}
	return nil
}
