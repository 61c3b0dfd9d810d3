package topic

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
)

// DefaultBuffer is the publish queue size used when NewHub gets zero.
const DefaultBuffer = 256

// Message is the payload delivered for every publish.
type Message struct {
	Topic string `json:"topic" mapstructure:"topic"`
	Data  any    `json:"data" mapstructure:"data"`
}

// KeyOf routes a Message by its topic. It is a dispatch.KeyFunc.
func KeyOf(payload any) (string, bool) {
	switch m := payload.(type) {
	case Message:
		return m.Topic, true
	case *Message:
		if m == nil {
			return "", false
		}
		return m.Topic, true
	default:
		return "", false
	}
}

// Match returns a filter accepting messages whose topic matches the glob
// pattern (e.g. "order:*").
func Match(pattern string) dispatch.Filter {
	return func(ctx context.Context, payload any) (bool, error) {
		t, ok := KeyOf(payload)
		if !ok {
			return false, nil
		}
		return filepath.Match(pattern, t)
	}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMaxInFlight bounds how many queued messages are delivered at once.
func WithMaxInFlight(n int) HubOption {
	return func(h *Hub) { h.deliveries = dispatch.NewDeliveries(n) }
}

// Hub queues published messages and delivers them to its subscriber. Each
// queued message is delivered on its own goroutine, up to the in-flight
// limit, so delivery order across messages is not guaranteed.
type Hub struct {
	name       string
	publish    chan Message
	done       chan struct{}
	stopping   context.Context
	cancel     context.CancelFunc
	stopped    bool
	running    bool
	subscriber dispatch.Callback
	deliveries *dispatch.Deliveries
	mu         sync.RWMutex
	wg         sync.WaitGroup

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
	log       *logger.Logger
}

var (
	_ dispatch.Source       = (*Hub)(nil)
	_ component.Component   = (*Hub)(nil)
	_ component.Describable = (*Hub)(nil)
)

// NewHub creates a hub with a publish queue of size buffer.
func NewHub(name string, buffer int, opts ...HubOption) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	stopping, cancel := context.WithCancel(context.Background())
	h := &Hub{
		name:       name,
		publish:    make(chan Message, buffer),
		done:       make(chan struct{}),
		stopping:   stopping,
		cancel:     cancel,
		deliveries: dispatch.NewDeliveries(dispatch.DefaultMaxInFlight),
		log:        logger.Get("topic").WithComponent(name),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the hub name.
func (h *Hub) Name() string { return h.name }

// Subscribe sets the hub's callback. A hub has exactly one subscriber.
func (h *Hub) Subscribe(fn dispatch.Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscriber != nil {
		return fmt.Errorf("hub %s already has a subscriber", h.name)
	}
	h.subscriber = fn
	return nil
}

// Publish queues data under topic. It returns false when the hub is stopped
// or the queue is full.
func (h *Hub) Publish(topic string, data any) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return false
	}
	select {
	case h.publish <- Message{Topic: topic, Data: data}:
		return true
	default:
		h.dropped.Add(1)
		h.log.Warn("Publish queue full, dropping message", logger.Fields("topic", topic))
		return false
	}
}

// Request delivers a message synchronously and returns the listeners'
// results, bypassing the queue and the in-flight limit.
func (h *Hub) Request(ctx context.Context, topic string, data any) ([]any, error) {
	h.mu.RLock()
	fn := h.subscriber
	h.mu.RUnlock()
	if fn == nil {
		return nil, errors.New(errors.ErrCodeSubscribeFailed, fmt.Sprintf("hub %s has no subscriber", h.name))
	}
	return fn(ctx, Message{Topic: topic, Data: data})
}

// Start launches the delivery loop.
func (h *Hub) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	if h.stopped {
		return fmt.Errorf("hub %s is stopped", h.name)
	}
	h.running = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run()
	}()
	return nil
}

// Stop signals the loop to exit and waits for it and for the deliveries in
// flight. Queued messages that were not delivered yet are discarded. Safe to
// call multiple times.
func (h *Hub) Stop(_ context.Context) error {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
		h.cancel()
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.deliveries.Wait()
	return nil
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.log.Debug("Hub stopped", logger.Fields("pending", len(h.publish)))
			return
		case msg := <-h.publish:
			if err := h.deliveries.Go(h.stopping, func() { h.deliver(msg) }); err != nil {
				h.dropped.Add(1)
				return
			}
		}
	}
}

func (h *Hub) deliver(msg Message) {
	h.mu.RLock()
	fn := h.subscriber
	h.mu.RUnlock()
	if fn == nil {
		h.dropped.Add(1)
		h.log.Debug("No subscriber, dropping message", logger.Fields("topic", msg.Topic))
		return
	}

	if _, err := fn(context.Background(), msg); err != nil {
		h.failed.Add(1)
		h.log.Error("Message delivery failed", logger.Fields(
			"topic", msg.Topic,
			logger.FieldError, err.Error(),
		))
		return
	}
	h.delivered.Add(1)
}

// Stats returns delivered, dropped and failed message counts.
func (h *Hub) Stats() (delivered, dropped, failed int64) {
	return h.delivered.Load(), h.dropped.Load(), h.failed.Load()
}

// Health reports the hub as degraded while it is not running.
func (h *Hub) Health(_ context.Context) component.Health {
	h.mu.RLock()
	running := h.running && !h.stopped
	h.mu.RUnlock()

	delivered, dropped, failed := h.Stats()
	status := component.StatusHealthy
	if !running {
		status = component.StatusDegraded
	}
	return component.Health{
		Name:    h.name,
		Status:  status,
		Message: fmt.Sprintf("delivered=%d dropped=%d failed=%d", delivered, dropped, failed),
	}
}

// Describe returns the startup summary for the hub.
func (h *Hub) Describe() component.Description {
	return component.Description{
		Name:    "Topic Hub",
		Type:    "source",
		Details: fmt.Sprintf("buffer=%d max_in_flight=%d", cap(h.publish), h.deliveries.Limit()),
	}
}
