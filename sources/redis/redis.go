// Package redis delivers Redis pub/sub messages as events.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/config"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/errors"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/validation"
)

// Message is the payload of one published message. Data holds the decoded
// payload when it is JSON.
type Message struct {
	Channel string `json:"channel" mapstructure:"channel"`
	Pattern string `json:"pattern,omitempty" mapstructure:"pattern"`
	Payload string `json:"payload" mapstructure:"payload"`
	Data    any    `json:"data,omitempty" mapstructure:"data"`
}

// KeyOf routes a Message by channel.
func KeyOf(payload any) (string, bool) {
	switch m := payload.(type) {
	case Message:
		return m.Channel, true
	case *Message:
		if m == nil {
			return "", false
		}
		return m.Channel, true
	}
	return "", false
}

// Option configures a Source.
type Option func(*Source)

// WithMaxInFlight bounds how many messages are delivered at once.
func WithMaxInFlight(n int) Option {
	return func(s *Source) { s.deliveries = dispatch.NewDeliveries(n) }
}

// Source subscribes to the configured channels once started. Messages are
// delivered concurrently up to the in-flight limit, so a slow listener
// does not hold up later messages.
type Source struct {
	name string
	cfg  config.RedisConfig
	log  *logger.Logger

	mu         sync.Mutex
	subscriber dispatch.Callback
	client     *goredis.Client
	pubsub     *goredis.PubSub
	cancel     context.CancelFunc
	deliveries *dispatch.Deliveries
	wg         sync.WaitGroup

	received atomic.Uint64
	failed   atomic.Uint64
}

var (
	_ dispatch.Source       = (*Source)(nil)
	_ component.Component   = (*Source)(nil)
	_ component.Describable = (*Source)(nil)
)

// New creates a pub/sub source. The connection is opened on Start.
func New(cfg config.RedisConfig, opts ...Option) (*Source, error) {
	if err := validation.New().Min("redis."+cfg.Name+".channels", len(cfg.Channels), 1).Err(); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	s := &Source{
		name:       cfg.Name,
		cfg:        cfg,
		deliveries: dispatch.NewDeliveries(dispatch.DefaultMaxInFlight),
		log:        logger.Get("redis").WithComponent(cfg.Name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Subscribe sets the callback messages are delivered to.
func (s *Source) Subscribe(fn dispatch.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriber != nil {
		return fmt.Errorf("redis %s already has a subscriber", s.name)
	}
	s.subscriber = fn
	return nil
}

// Start connects, subscribes and waits for the server to confirm the
// subscription. Starting a running source is a no-op.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     s.cfg.Addr,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis %s ping: %w", s.name, err)
	}

	var ps *goredis.PubSub
	if s.cfg.Pattern {
		ps = client.PSubscribe(ctx, s.cfg.Channels...)
	} else {
		ps = client.Subscribe(ctx, s.cfg.Channels...)
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = client.Close()
		return fmt.Errorf("redis %s subscribe: %w", s.name, err)
	}

	s.client, s.pubsub = client, ps
	stopping, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(stopping, ps.Channel())

	s.log.Info("Redis subscription started", logger.Fields(
		"addr", s.cfg.Addr,
		"channels", strings.Join(s.cfg.Channels, ","),
		"pattern", s.cfg.Pattern,
	))
	return nil
}

// Stop closes the subscription, waits for the messages being delivered and
// closes the connection.
func (s *Source) Stop(_ context.Context) error {
	s.mu.Lock()
	client, ps, cancel := s.client, s.pubsub, s.cancel
	s.client, s.pubsub, s.cancel = nil, nil, nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}

	cancel()
	err := ps.Close()
	s.wg.Wait()
	s.deliveries.Wait()
	if cerr := client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Source) loop(stopping context.Context, ch <-chan *goredis.Message) {
	defer s.wg.Done()
	for m := range ch {
		s.received.Add(1)
		if err := s.deliveries.Go(stopping, func() { s.deliver(m) }); err != nil {
			return
		}
	}
}

func (s *Source) deliver(m *goredis.Message) {
	s.mu.Lock()
	fn := s.subscriber
	s.mu.Unlock()
	if fn == nil {
		return
	}

	msg := Message{Channel: m.Channel, Pattern: m.Pattern, Payload: m.Payload}
	var data any
	if json.Unmarshal([]byte(m.Payload), &data) == nil {
		msg.Data = data
	}
	if _, err := fn(context.Background(), msg); err != nil {
		s.failed.Add(1)
		s.log.Error("Message delivery failed", logger.Fields(
			"channel", m.Channel,
			logger.FieldError, err.Error(),
		))
	}
}

// Publish sends v on channel over the source's connection. Strings and
// byte slices are sent as is; anything else is encoded as JSON.
func (s *Source) Publish(ctx context.Context, channel string, v any) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return errors.New(errors.ErrCodeNotStarted, fmt.Sprintf("redis %s is not started", s.name))
	}

	var payload any
	switch p := v.(type) {
	case string, []byte:
		payload = p
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("redis %s encode: %w", s.name, err)
		}
		payload = b
	}
	return client.Publish(ctx, channel, payload).Err()
}

// Received returns how many messages have arrived.
func (s *Source) Received() uint64 { return s.received.Load() }

// Health pings the server. It is degraded while stopped.
func (s *Source) Health(ctx context.Context) component.Health {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	h := component.Health{
		Name:    s.name,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("received=%d failed=%d", s.received.Load(), s.failed.Load()),
	}
	switch {
	case client == nil:
		h.Status = component.StatusDegraded
	default:
		if err := client.Ping(ctx).Err(); err != nil {
			h.Status = component.StatusUnhealthy
			h.Message = err.Error()
		}
	}
	return h
}

// Describe returns the startup summary for the subscription.
func (s *Source) Describe() component.Description {
	kind := "channels"
	if s.cfg.Pattern {
		kind = "patterns"
	}
	return component.Description{
		Name:    "Redis",
		Type:    "source",
		Details: fmt.Sprintf("%s=%s", kind, strings.Join(s.cfg.Channels, ",")),
	}
}
