package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
)

// Hook is a lifecycle callback.
type Hook func(ctx context.Context) error

// OnStart adds hooks that run once components and sources are started,
// before services are initialized.
func (a *App[C]) OnStart(hooks ...Hook) {
	a.onStart = append(a.onStart, hooks...)
}

// OnReady adds hooks that run after every registered service is
// initialized.
func (a *App[C]) OnReady(hooks ...Hook) {
	a.onReady = append(a.onReady, hooks...)
}

// OnStop adds hooks that run first on shutdown, while sources still
// deliver events.
func (a *App[C]) OnStop(hooks ...Hook) {
	a.onStop = append(a.onStop, hooks...)
}

// runHooks returns at the first failing hook.
func runHooks(ctx context.Context, hooks []Hook) error {
	for i, h := range hooks {
		if err := h(ctx); err != nil {
			return fmt.Errorf("hook %d: %w", i, err)
		}
	}
	return nil
}

// runAllHooks runs every hook and combines the failures.
func runAllHooks(ctx context.Context, hooks []Hook) error {
	var errs error
	for i, h := range hooks {
		if err := h(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("hook %d: %w", i, err))
		}
	}
	return errs
}
