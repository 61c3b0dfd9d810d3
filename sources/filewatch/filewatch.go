// Package filewatch provides a filesystem change event source built on
// fsnotify.
package filewatch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
)

// Change is the payload delivered for every filesystem event.
type Change struct {
	Path string `json:"path" mapstructure:"path"`
	Op   string `json:"op" mapstructure:"op"`
}

// Has reports whether the change includes op ("CREATE", "WRITE", "REMOVE",
// "RENAME" or "CHMOD").
func (c Change) Has(op fsnotify.Op) bool {
	return slices.Contains(strings.Split(c.Op, "|"), op.String())
}

// Option configures a Source.
type Option func(*Source)

// WithOps limits delivery to events containing one of ops.
func WithOps(ops ...fsnotify.Op) Option {
	return func(s *Source) {
		s.ops = 0
		for _, op := range ops {
			s.ops |= op
		}
	}
}

// WithMaxInFlight bounds how many changes are delivered at once.
func WithMaxInFlight(n int) Option {
	return func(s *Source) { s.deliveries = dispatch.NewDeliveries(n) }
}

// ParseOps maps lower-case operation names ("create", "write", "remove",
// "rename", "chmod") to fsnotify operations.
func ParseOps(names []string) ([]fsnotify.Op, error) {
	ops := make([]fsnotify.Op, 0, len(names))
	for _, name := range names {
		op, ok := opNames[strings.ToLower(name)]
		if !ok {
			return nil, errors.Validation(fmt.Sprintf("unknown file operation %q", name))
		}
		ops = append(ops, op)
	}
	return ops, nil
}

var opNames = map[string]fsnotify.Op{
	"create": fsnotify.Create,
	"write":  fsnotify.Write,
	"remove": fsnotify.Remove,
	"rename": fsnotify.Rename,
	"chmod":  fsnotify.Chmod,
}

// Source watches paths and delivers a Change for every matching event.
// Directories are watched non-recursively. Changes are delivered
// concurrently, so listeners must not rely on their order.
type Source struct {
	name  string
	paths []string
	ops   fsnotify.Op
	log   *logger.Logger

	mu         sync.Mutex
	subscriber dispatch.Callback
	watcher    *fsnotify.Watcher
	cancel     context.CancelFunc
	deliveries *dispatch.Deliveries
	wg         sync.WaitGroup
	lastErr    error

	delivered atomic.Uint64
}

var (
	_ dispatch.Source       = (*Source)(nil)
	_ component.Component   = (*Source)(nil)
	_ component.Describable = (*Source)(nil)
)

// New creates a file watch source. By default every operation is delivered.
func New(name string, paths []string, opts ...Option) *Source {
	s := &Source{
		name:       name,
		paths:      append([]string(nil), paths...),
		ops:        fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod,
		deliveries: dispatch.NewDeliveries(dispatch.DefaultMaxInFlight),
		log:        logger.Get("filewatch").WithComponent(name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Subscribe sets the callback changes are delivered to.
func (s *Source) Subscribe(fn dispatch.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriber != nil {
		return fmt.Errorf("filewatch %s already has a subscriber", s.name)
	}
	s.subscriber = fn
	return nil
}

// Start creates the watcher and adds every path. A path that cannot be
// watched fails Start.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	for _, p := range s.paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return fmt.Errorf("watching %s: %w", p, err)
		}
	}
	s.watcher = w
	stopping, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(stopping, w)

	s.log.Debug("File watch started", logger.Fields("paths", len(s.paths)))
	return nil
}

// Stop closes the watcher and waits for the loop and the deliveries in
// flight.
func (s *Source) Stop(_ context.Context) error {
	s.mu.Lock()
	w, cancel := s.watcher, s.cancel
	s.watcher, s.cancel = nil, nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}

	cancel()
	err := w.Close()
	s.wg.Wait()
	s.deliveries.Wait()
	return err
}

func (s *Source) loop(stopping context.Context, w *fsnotify.Watcher) {
	defer s.wg.Done()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&s.ops == 0 {
				continue
			}
			c := Change{Path: ev.Name, Op: ev.Op.String()}
			if err := s.deliveries.Go(stopping, func() { s.deliver(c) }); err != nil {
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			s.log.Warn("Watcher error", logger.Fields(logger.FieldError, err.Error()))
		}
	}
}

func (s *Source) deliver(c Change) {
	s.mu.Lock()
	fn := s.subscriber
	s.mu.Unlock()
	if fn == nil {
		return
	}
	if _, err := fn(context.Background(), c); err != nil {
		s.log.Error("Change delivery failed", logger.Fields(
			"path", c.Path,
			logger.FieldError, err.Error(),
		))
		return
	}
	s.delivered.Add(1)
}

// Health reports unhealthy after a watcher error and degraded while stopped.
func (s *Source) Health(_ context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := component.Health{
		Name:    s.name,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("delivered=%d", s.delivered.Load()),
	}
	switch {
	case s.lastErr != nil:
		h.Status = component.StatusUnhealthy
		h.Message = s.lastErr.Error()
	case s.watcher == nil:
		h.Status = component.StatusDegraded
	}
	return h
}

// Describe returns the startup summary for the watcher.
func (s *Source) Describe() component.Description {
	return component.Description{
		Name:    "File Watcher",
		Type:    "source",
		Details: fmt.Sprintf("paths=%d", len(s.paths)),
	}
}
