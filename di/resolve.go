package di

import (
	"context"
	"fmt"
)

// Resolve resolves def, waits for its init chain and returns the value as T.
//
// Example:
//
//	mailer, err := di.Resolve[*Mailer](ctx, c, Mailer)
//	if err != nil {
//	    return fmt.Errorf("failed to get mailer: %w", err)
//	}
func Resolve[T any](ctx context.Context, c *Container, def *Definition) (T, error) {
	var zero T
	inst, err := c.ResolveInit(ctx, def)
	if err != nil {
		return zero, fmt.Errorf("di: failed to resolve %s: %w", def.name, err)
	}
	result, ok := inst.value.(T)
	if !ok {
		return zero, fmt.Errorf("di: service %s is %T, expected %T", def.name, inst.value, zero)
	}
	return result, nil
}

// MustResolve is Resolve that panics on error. Use it in wiring code where a
// missing service is a programming error.
func MustResolve[T any](ctx context.Context, c *Container, def *Definition) T {
	v, err := Resolve[T](ctx, c, def)
	if err != nil {
		panic(err.Error())
	}
	return v
}

// TryResolve resolves a service, returns zero value and false on any failure.
// Use this when a dependency is optional.
func TryResolve[T any](ctx context.Context, c *Container, def *Definition) (T, bool) {
	v, err := Resolve[T](ctx, c, def)
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
