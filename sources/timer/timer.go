// Package timer provides a periodic event source.
//
// Each tick is delivered as a Tick payload. The clock is injectable so tests
// can drive ticks with a mock clock.
package timer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/logger"
)

// Tick is the payload of one timer firing.
type Tick struct {
	Name string    `json:"name" mapstructure:"name"`
	At   time.Time `json:"at" mapstructure:"at"`
	Seq  uint64    `json:"seq" mapstructure:"seq"`
}

// Option configures a Source.
type Option func(*Source)

// WithClock sets the clock the ticker runs on.
func WithClock(c clock.Clock) Option {
	return func(s *Source) { s.clock = c }
}

// WithMaxInFlight bounds how many ticks are delivered at once. A tick that
// finds every slot busy waits for one.
func WithMaxInFlight(n int) Option {
	return func(s *Source) { s.deliveries = dispatch.NewDeliveries(n) }
}

// Source fires a Tick every interval once started.
type Source struct {
	name     string
	interval time.Duration
	clock    clock.Clock
	log      *logger.Logger

	mu         sync.Mutex
	subscriber dispatch.Callback
	ticker     *clock.Ticker
	done       chan struct{}
	cancel     context.CancelFunc
	deliveries *dispatch.Deliveries
	wg         sync.WaitGroup

	seq    atomic.Uint64
	failed atomic.Uint64
}

var (
	_ dispatch.Source       = (*Source)(nil)
	_ component.Component   = (*Source)(nil)
	_ component.Describable = (*Source)(nil)
)

// New creates a timer source. interval must be positive.
func New(name string, interval time.Duration, opts ...Option) (*Source, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("timer %s: interval must be positive, got %s", name, interval)
	}
	s := &Source{
		name:     name,
		interval: interval,
		clock:      clock.New(),
		deliveries: dispatch.NewDeliveries(dispatch.DefaultMaxInFlight),
		log:        logger.Get("timer").WithComponent(name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Subscribe sets the callback ticks are delivered to.
func (s *Source) Subscribe(fn dispatch.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriber != nil {
		return fmt.Errorf("timer %s already has a subscriber", s.name)
	}
	s.subscriber = fn
	return nil
}

// Start starts the ticker. Starting a running source is a no-op.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return nil
	}

	s.ticker = s.clock.Ticker(s.interval)
	s.done = make(chan struct{})
	stopping, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(stopping, s.ticker, s.done)

	s.log.Debug("Timer started", logger.Fields("interval", s.interval.String()))
	return nil
}

// Stop stops the ticker and waits for the deliveries in flight to finish.
func (s *Source) Stop(_ context.Context) error {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return nil
	}
	s.ticker.Stop()
	close(s.done)
	s.cancel()
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.deliveries.Wait()
	return nil
}

func (s *Source) loop(stopping context.Context, ticker *clock.Ticker, done <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-done:
			return
		case at := <-ticker.C:
			// Sequence numbers follow tick order even when deliveries overlap.
			tick := Tick{Name: s.name, At: at, Seq: s.seq.Add(1)}
			if err := s.deliveries.Go(stopping, func() { s.fire(tick) }); err != nil {
				return
			}
		}
	}
}

func (s *Source) fire(tick Tick) {
	s.mu.Lock()
	fn := s.subscriber
	s.mu.Unlock()
	if fn == nil {
		return
	}
	if _, err := fn(context.Background(), tick); err != nil {
		s.failed.Add(1)
		s.log.Error("Tick delivery failed", logger.Fields(
			"seq", tick.Seq,
			logger.FieldError, err.Error(),
		))
	}
}

// Ticks returns how many ticks have fired.
func (s *Source) Ticks() uint64 { return s.seq.Load() }

// Health reports degraded while the timer is stopped.
func (s *Source) Health(_ context.Context) component.Health {
	s.mu.Lock()
	running := s.ticker != nil
	s.mu.Unlock()

	h := component.Health{
		Name:    s.name,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("ticks=%d failed=%d", s.seq.Load(), s.failed.Load()),
	}
	if !running {
		h.Status = component.StatusDegraded
	}
	return h
}

// Describe returns the startup summary for the timer.
func (s *Source) Describe() component.Description {
	return component.Description{
		Name:    "Timer",
		Type:    "source",
		Details: fmt.Sprintf("interval=%s max_in_flight=%d", s.interval, s.deliveries.Limit()),
	}
}
