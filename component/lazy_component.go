package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/eventkit/logger"
)

// Lazy runs an initializer at most once successfully. A failed attempt is
// remembered for health reporting and the next Initialize call retries.
// Event categories use it to subscribe to their source on first listen.
type Lazy struct {
	name        string
	mu          sync.RWMutex
	initialized bool
	lastError   error
	initializer func(ctx context.Context) error
}

// NewLazy creates a lazy initializer.
func NewLazy(name string, initializer func(context.Context) error) *Lazy {
	return &Lazy{
		name:        name,
		initializer: initializer,
	}
}

// Name returns the lazy unit's name.
func (l *Lazy) Name() string {
	return l.name
}

// Initialize performs thread-safe lazy initialization using double-check locking.
func (l *Lazy) Initialize(ctx context.Context) error {
	l.mu.RLock()
	if l.initialized {
		l.mu.RUnlock()
		return nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if l.initialized {
		return nil
	}

	if l.initializer == nil {
		return fmt.Errorf("no initializer for %s", l.name)
	}

	logger.Debug("Running lazy initializer", logger.Fields(logger.FieldComponent, l.name))

	if err := l.initializer(ctx); err != nil {
		l.lastError = err
		return err
	}

	l.initialized = true
	l.lastError = nil

	logger.Debug("Lazy initializer completed", logger.Fields(logger.FieldComponent, l.name))
	return nil
}

// IsInitialized returns whether initialization has succeeded.
func (l *Lazy) IsInitialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// LastError returns the error of the most recent failed attempt, if any.
func (l *Lazy) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastError
}

// Health reports healthy once initialized, unhealthy after a failed attempt
// and degraded while nothing has been attempted yet.
func (l *Lazy) Health() Health {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch {
	case l.initialized:
		return Health{Name: l.name, Status: StatusHealthy}
	case l.lastError != nil:
		return Health{Name: l.name, Status: StatusUnhealthy, Message: l.lastError.Error()}
	default:
		return Health{Name: l.name, Status: StatusDegraded, Message: "not initialized"}
	}
}
