// Package kafka consumes a Kafka topic as an event source.
//
// Every record is delivered as a Message. Records whose value is JSON also
// carry the decoded value in Data, so bindings such as params.Key(0, "data")
// can address fields of the record.
//
// Unlike the other sources, records are delivered one at a time in offset
// order: the next record is read only after the previous delivery returns.
// A listener that blocks therefore stalls the topic. Bound slow work with a
// context deadline or dispatch.WithBulkhead.
package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/kbukum/eventkit/component"
	"github.com/kbukum/eventkit/config"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/logger"
	"github.com/kbukum/eventkit/validation"
)

// Message is the payload of one consumed record.
type Message struct {
	Topic     string            `json:"topic" mapstructure:"topic"`
	Partition int               `json:"partition" mapstructure:"partition"`
	Offset    int64             `json:"offset" mapstructure:"offset"`
	Key       string            `json:"key" mapstructure:"key"`
	Value     []byte            `json:"value" mapstructure:"value"`
	Data      any               `json:"data,omitempty" mapstructure:"data"`
	Headers   map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Time      time.Time         `json:"time" mapstructure:"time"`
}

// KeyOf routes a Message by its record key.
func KeyOf(payload any) (string, bool) {
	switch m := payload.(type) {
	case Message:
		return m.Key, true
	case *Message:
		if m == nil {
			return "", false
		}
		return m.Key, true
	}
	return "", false
}

// Reader is the part of *kafkago.Reader the source uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// maxBackoff caps the wait after consecutive read failures.
const maxBackoff = 30 * time.Second

// Option configures a Source.
type Option func(*Source)

// WithReader replaces the kafka-go reader built from the config.
func WithReader(r Reader) Option {
	return func(s *Source) { s.newReader = func() (Reader, error) { return r, nil } }
}

// WithClock sets the clock read-failure backoff waits on.
func WithClock(c clock.Clock) Option {
	return func(s *Source) { s.clock = c }
}

// Source reads one topic and delivers each record to its subscriber, in
// order.
type Source struct {
	name      string
	cfg       config.KafkaConfig
	clock     clock.Clock
	log       *logger.Logger
	newReader func() (Reader, error)

	mu         sync.Mutex
	subscriber dispatch.Callback
	reader     Reader
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	consumed atomic.Uint64
	failed   atomic.Uint64
	// readErrors counts consecutive read failures; a successful read resets it.
	readErrors atomic.Int64
}

var (
	_ dispatch.Source       = (*Source)(nil)
	_ component.Component   = (*Source)(nil)
	_ component.Describable = (*Source)(nil)
)

// New creates a consumer for cfg.Topic. The connection is opened on Start.
func New(cfg config.KafkaConfig, opts ...Option) (*Source, error) {
	err := validation.New().
		Required("kafka."+cfg.Name+".topic", cfg.Topic).
		Min("kafka."+cfg.Name+".brokers", len(cfg.Brokers), 1).
		Err()
	if err != nil {
		return nil, err
	}
	s := &Source{
		name:  cfg.Name,
		cfg:   cfg,
		clock: clock.New(),
		log:   logger.Get("kafka").WithComponent(cfg.Name),
	}
	s.newReader = s.dial
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) dial() (Reader, error) {
	dialer, err := newDialer(s.cfg)
	if err != nil {
		return nil, err
	}
	offset := kafkago.FirstOffset
	if s.cfg.StartOffset == "last" {
		offset = kafkago.LastOffset
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     s.cfg.Brokers,
		Topic:       s.cfg.Topic,
		GroupID:     s.cfg.GroupID,
		Dialer:      dialer,
		StartOffset: offset,
		MinBytes:    1,
		MaxBytes:    10e6,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...any) {
			s.log.Error("Reader: "+fmt.Sprintf(msg, args...), logger.Fields("topic", s.cfg.Topic))
		}),
	}), nil
}

func newDialer(cfg config.KafkaConfig) (*kafkago.Dialer, error) {
	d := &kafkago.Dialer{Timeout: cfg.DialTimeout, DualStack: true}
	if cfg.TLS.Enabled {
		tc, err := tlsConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("kafka %s tls: %w", cfg.Name, err)
		}
		d.TLS = tc
	}
	if cfg.SASL.Mechanism != "" {
		m, err := saslMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("kafka %s sasl: %w", cfg.Name, err)
		}
		d.SASLMechanism = m
	}
	return d, nil
}

func tlsConfig(c config.KafkaTLSConfig) (*tls.Config, error) {
	tc := &tls.Config{InsecureSkipVerify: c.SkipVerify, MinVersion: tls.VersionTLS12}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", c.CAFile)
		}
		tc.RootCAs = pool
	}
	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

func saslMechanism(c config.KafkaSASLConfig) (sasl.Mechanism, error) {
	switch c.Mechanism {
	case "PLAIN":
		return plain.Mechanism{Username: c.Username, Password: c.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.Username, c.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.Username, c.Password)
	}
	return nil, fmt.Errorf("unsupported mechanism %q", c.Mechanism)
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Subscribe sets the callback records are delivered to.
func (s *Source) Subscribe(fn dispatch.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriber != nil {
		return fmt.Errorf("kafka %s already has a subscriber", s.name)
	}
	s.subscriber = fn
	return nil
}

// Start opens the reader and starts consuming. Starting a running source is
// a no-op.
func (s *Source) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader != nil {
		return nil
	}

	r, err := s.newReader()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.reader, s.cancel = r, cancel

	s.wg.Add(1)
	go s.consume(ctx, r)

	s.log.Info("Kafka consumer started", logger.Fields(
		"topic", s.cfg.Topic,
		"group_id", s.cfg.GroupID,
		"brokers", s.cfg.Brokers,
	))
	return nil
}

// Stop stops consuming, waits for the record being delivered and closes the
// reader.
func (s *Source) Stop(_ context.Context) error {
	s.mu.Lock()
	r, cancel := s.reader, s.cancel
	s.reader, s.cancel = nil, nil
	s.mu.Unlock()
	if r == nil {
		return nil
	}

	cancel()
	s.wg.Wait()
	return r.Close()
}

func (s *Source) consume(ctx context.Context, r Reader) {
	defer s.wg.Done()
	for {
		rec, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !s.backoff(ctx, err) {
				return
			}
			continue
		}
		s.readErrors.Store(0)
		s.deliver(ctx, rec)
	}
}

// backoff waits one second per consecutive failure, capped at maxBackoff.
// It returns false when ctx ends first.
func (s *Source) backoff(ctx context.Context, err error) bool {
	n := s.readErrors.Add(1)
	wait := time.Duration(n) * time.Second
	if wait > maxBackoff {
		wait = maxBackoff
	}
	if n <= 3 {
		s.log.Warn("Kafka read failed", logger.Fields(
			"topic", s.cfg.Topic,
			"failures", n,
			"backoff", wait.String(),
			logger.FieldError, err.Error(),
		))
	}

	t := s.clock.Timer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Source) deliver(ctx context.Context, rec kafkago.Message) {
	s.consumed.Add(1)
	s.mu.Lock()
	fn := s.subscriber
	s.mu.Unlock()
	if fn == nil {
		return
	}

	msg := toMessage(rec)
	if _, err := fn(ctx, msg); err != nil {
		s.failed.Add(1)
		s.log.Error("Record delivery failed", logger.Fields(
			"partition", msg.Partition,
			"offset", msg.Offset,
			logger.FieldError, err.Error(),
		))
	}
}

func toMessage(rec kafkago.Message) Message {
	msg := Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       string(rec.Key),
		Value:     rec.Value,
		Time:      rec.Time,
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make(map[string]string, len(rec.Headers))
		for _, h := range rec.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	var data any
	if json.Unmarshal(rec.Value, &data) == nil {
		msg.Data = data
	}
	return msg
}

// Consumed returns how many records have been read.
func (s *Source) Consumed() uint64 { return s.consumed.Load() }

// Health is degraded while stopped or while reads keep failing.
func (s *Source) Health(_ context.Context) component.Health {
	s.mu.Lock()
	running := s.reader != nil
	s.mu.Unlock()

	h := component.Health{
		Name:    s.name,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("consumed=%d failed=%d", s.consumed.Load(), s.failed.Load()),
	}
	switch {
	case !running:
		h.Status = component.StatusDegraded
	case s.readErrors.Load() > 0:
		h.Status = component.StatusDegraded
		h.Message += fmt.Sprintf(" read_errors=%d", s.readErrors.Load())
	}
	return h
}

// Describe returns the startup summary for the consumer.
func (s *Source) Describe() component.Description {
	details := "topic=" + s.cfg.Topic
	if s.cfg.GroupID != "" {
		details += " group=" + s.cfg.GroupID
	}
	return component.Description{Name: "Kafka", Type: "source", Details: details}
}
