package topic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/eventkit/di"
	"github.com/kbukum/eventkit/dispatch"
	"github.com/kbukum/eventkit/params"
)

type inbox struct {
	mu       sync.Mutex
	received []any
	signal   chan struct{}
	hold     chan struct{}
	holding  chan struct{}
}

func (i *inbox) Receive(data any) {
	i.mu.Lock()
	i.received = append(i.received, data)
	i.mu.Unlock()
	i.signal <- struct{}{}
}

// Hang blocks until hold is closed.
func (i *inbox) Hang(data any) {
	i.holding <- struct{}{}
	<-i.hold
}

func (i *inbox) Reply(data any) string {
	return "re:" + data.(string)
}

func newInbox(t *testing.T) (*dispatch.Factory, *di.Definition, *inbox) {
	t.Helper()
	box := &inbox{
		signal:  make(chan struct{}, 16),
		hold:    make(chan struct{}),
		holding: make(chan struct{}, 16),
	}
	def := di.Define("inbox", func(ctx context.Context, _ di.Deps) (*inbox, error) {
		return box, nil
	})
	c := di.NewContainer()
	c.Register(def)
	f, err := dispatch.NewFactory(c, params.NewRegistry(nil), dispatch.WithoutMetrics(), dispatch.WithoutTracing())
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	return f, def, box
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
		ok      bool
	}{
		{"value", Message{Topic: "a"}, "a", true},
		{"pointer", &Message{Topic: "b"}, "b", true},
		{"nil pointer", (*Message)(nil), "", false},
		{"other", "a", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KeyOf(tt.payload)
			if got != tt.want || ok != tt.ok {
				t.Errorf("KeyOf() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	filter := Match("order:*")
	ctx := context.Background()

	if ok, _ := filter(ctx, Message{Topic: "order:created"}); !ok {
		t.Error("expected order:created to match")
	}
	if ok, _ := filter(ctx, Message{Topic: "user:created"}); ok {
		t.Error("expected user:created not to match")
	}
	if ok, _ := filter(ctx, "not a message"); ok {
		t.Error("expected non-message payload not to match")
	}
	if _, err := Match("[")(ctx, Message{Topic: "x"}); err == nil {
		t.Error("expected bad pattern error")
	}
}

func TestHub_DeliversByTopic(t *testing.T) {
	f, def, box := newInbox(t)
	hub := NewHub("events", 0)
	keyed := dispatch.NewKeyedCategory(f, "events", hub, KeyOf)

	if err := keyed.Listen(context.Background(), "order:created", def, "Receive",
		dispatch.WithArgs(params.Key(0, "data"))); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop(context.Background())

	hub.Publish("user:created", "ignored")
	hub.Publish("order:created", "o-1")
	waitSignal(t, box.signal)

	box.mu.Lock()
	defer box.mu.Unlock()
	if len(box.received) != 1 || box.received[0] != "o-1" {
		t.Errorf("expected [o-1], got %v", box.received)
	}
}

func TestHub_GlobFilter(t *testing.T) {
	f, def, box := newInbox(t)
	hub := NewHub("events", 0)
	cat := dispatch.NewCategory(f, "events", hub)

	cat.Listen(context.Background(), def, "Receive",
		dispatch.WithArgs(params.Key(0, "topic")),
		dispatch.WithFilter(Match("order:*")))
	hub.Start(context.Background())
	defer hub.Stop(context.Background())

	hub.Publish("user:created", nil)
	hub.Publish("order:paid", nil)
	waitSignal(t, box.signal)
	time.Sleep(10 * time.Millisecond)

	box.mu.Lock()
	defer box.mu.Unlock()
	if len(box.received) != 1 || box.received[0] != "order:paid" {
		t.Errorf("expected [order:paid], got %v", box.received)
	}
}

func TestHub_Request(t *testing.T) {
	f, def, _ := newInbox(t)
	hub := NewHub("rpc", 0)

	if _, err := hub.Request(context.Background(), "ping", "x"); err == nil {
		t.Error("expected error without subscriber")
	}

	keyed := dispatch.NewKeyedCategory(f, "rpc", hub, KeyOf)
	keyed.Listen(context.Background(), "ping", def, "Reply", dispatch.WithArgs(params.Key(0, "data")))

	results, err := hub.Request(context.Background(), "ping", "hello")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if len(results) != 1 || results[0] != "re:hello" {
		t.Errorf("expected [re:hello], got %v", results)
	}
}

func TestHub_SingleSubscriber(t *testing.T) {
	hub := NewHub("events", 0)
	fn := func(ctx context.Context, payload any) ([]any, error) { return nil, nil }

	if err := hub.Subscribe(fn); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := hub.Subscribe(fn); err == nil {
		t.Error("expected second subscription to fail")
	}
}

func TestHub_PublishQueueFull(t *testing.T) {
	hub := NewHub("events", 2)

	if !hub.Publish("a", 1) || !hub.Publish("a", 2) {
		t.Fatal("expected queued publishes to succeed")
	}
	if hub.Publish("a", 3) {
		t.Error("expected publish to fail when queue is full")
	}
	if _, dropped, _ := hub.Stats(); dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
}

func TestHub_StopIdempotent(t *testing.T) {
	hub := NewHub("events", 0)
	hub.Start(context.Background())

	if h := hub.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("expected healthy while running, got %s", h.Status)
	}

	hub.Stop(context.Background())
	hub.Stop(context.Background())

	if hub.Publish("a", 1) {
		t.Error("expected publish after stop to fail")
	}
	if err := hub.Start(context.Background()); err == nil {
		t.Error("expected start after stop to fail")
	}
	if h := hub.Health(context.Background()); h.Status != "degraded" {
		t.Errorf("expected degraded after stop, got %s", h.Status)
	}
}

func TestHub_DeliveryFailureCounted(t *testing.T) {
	hub := NewHub("events", 0)
	done := make(chan struct{}, 1)
	hub.Subscribe(func(ctx context.Context, payload any) ([]any, error) {
		defer func() { done <- struct{}{} }()
		return nil, context.Canceled
	})
	hub.Start(context.Background())

	hub.Publish("a", 1)
	waitSignal(t, done)
	hub.Stop(context.Background())

	if _, _, failed := hub.Stats(); failed != 1 {
		t.Errorf("expected 1 failed delivery, got %d", failed)
	}
}

func TestHub_HungListenerDoesNotStallOthers(t *testing.T) {
	f, def, box := newInbox(t)
	hub := NewHub("events", 0)
	keyed := dispatch.NewKeyedCategory(f, "events", hub, KeyOf)
	keyed.Listen(context.Background(), "stuck", def, "Hang", dispatch.WithArgs(params.Key(0, "data")))
	keyed.Listen(context.Background(), "ok", def, "Receive", dispatch.WithArgs(params.Key(0, "data")))

	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hub.Stop(context.Background())
	defer close(box.hold)

	hub.Publish("stuck", "first")
	waitSignal(t, box.holding)
	hub.Publish("ok", "second")
	hub.Publish("ok", "third")
	waitSignal(t, box.signal)
	waitSignal(t, box.signal)

	box.mu.Lock()
	defer box.mu.Unlock()
	if len(box.received) != 2 {
		t.Errorf("expected both messages behind the hung one, got %v", box.received)
	}
}

func TestHub_MaxInFlight(t *testing.T) {
	hub := NewHub("events", 0, WithMaxInFlight(1))
	started := make(chan any, 2)
	release := make(chan struct{})
	hub.Subscribe(func(ctx context.Context, payload any) ([]any, error) {
		started <- payload.(Message).Data
		<-release
		return nil, nil
	})
	hub.Start(context.Background())

	hub.Publish("a", 1)
	hub.Publish("a", 2)
	select {
	case got := <-started:
		if got != 1 {
			t.Errorf("expected message 1 first, got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	select {
	case got := <-started:
		t.Fatalf("message %v delivered past the in-flight limit", got)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("second message not delivered after a slot freed")
	}
	hub.Stop(context.Background())

	if delivered, _, _ := hub.Stats(); delivered != 2 {
		t.Errorf("expected 2 delivered, got %d", delivered)
	}
}
