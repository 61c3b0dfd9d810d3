package component

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/kbukum/eventkit/errors"
)

// mockComponent implements Component for testing.
type mockComponent struct {
	name       string
	startErr   error
	stopErr    error
	health     Health
	startOrder *[]string
	stopOrder  *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) Health {
	return m.health
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	c := &mockComponent{name: "timer", health: Health{Name: "timer", Status: StatusHealthy}}

	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	c := &mockComponent{name: "timer"}
	r.Register(c)

	err := r.Register(&mockComponent{name: "timer"})
	if !errors.IsCode(err, errors.ErrCodeAlreadyRegistered) {
		t.Errorf("expected ALREADY_REGISTERED, got %v", err)
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry()
	c := &mockComponent{name: "timer"}
	r.Register(c)

	got := r.Get("timer")
	if got == nil {
		t.Fatal("expected to get registered component")
	}
	if got.Name() != "timer" {
		t.Errorf("expected 'db', got %q", got.Name())
	}
}

func TestGetNotFound(t *testing.T) {
	r := NewRegistry()
	got := r.Get("missing")
	if got != nil {
		t.Error("expected nil for unregistered component")
	}
}

func TestStartAll(t *testing.T) {
	r := NewRegistry()
	order := []string{}

	r.Register(&mockComponent{
		name: "timer", startOrder: &order,
		health: Health{Name: "timer", Status: StatusHealthy},
	})
	r.Register(&mockComponent{
		name: "topic", startOrder: &order,
		health: Health{Name: "topic", Status: StatusHealthy},
	})

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}

	if len(order) != 2 {
		t.Fatalf("expected 2 starts, got %d", len(order))
	}
	if order[0] != "timer" || order[1] != "topic" {
		t.Errorf("expected start order [timer, topic], got %v", order)
	}
}

func TestStartAllError(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{name: "timer", startErr: fmt.Errorf("watch limit reached")})

	err := r.StartAll(context.Background())
	if err == nil {
		t.Error("expected error from StartAll")
	}
}

func TestStopAllReverseOrder(t *testing.T) {
	r := NewRegistry()
	order := []string{}

	r.Register(&mockComponent{name: "timer", stopOrder: &order, health: Health{Name: "timer", Status: StatusHealthy}})
	r.Register(&mockComponent{name: "topic", stopOrder: &order, health: Health{Name: "topic", Status: StatusHealthy}})
	r.Register(&mockComponent{name: "filewatch", stopOrder: &order, health: Health{Name: "filewatch", Status: StatusHealthy}})

	r.StartAll(context.Background())
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}

	if len(order) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(order))
	}
	if order[0] != "filewatch" || order[1] != "topic" || order[2] != "timer" {
		t.Errorf("expected reverse stop order [filewatch, topic, timer], got %v", order)
	}
}

func TestStopAllSkipsUnstarted(t *testing.T) {
	r := NewRegistry()
	order := []string{}
	r.Register(&mockComponent{name: "timer", stopOrder: &order})

	// Don't start, then stop
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected 0 stops for unstarted components, got %d", len(order))
	}
}

func TestStopAllWithErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{
		name: "timer", stopErr: fmt.Errorf("stop failed"),
		health: Health{Name: "timer", Status: StatusHealthy},
	})
	r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if err == nil {
		t.Error("expected error from StopAll")
	}
}

func TestHealthAll(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{
		name:   "timer",
		health: Health{Name: "timer", Status: StatusHealthy, Message: "ticking"},
	})
	r.Register(&mockComponent{
		name:   "topic",
		health: Health{Name: "topic", Status: StatusUnhealthy, Message: "timeout"},
	})

	results := r.HealthAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != StatusHealthy {
		t.Errorf("expected timer healthy, got %s", results[0].Status)
	}
	if results[1].Status != StatusUnhealthy {
		t.Errorf("expected topic unhealthy, got %s", results[1].Status)
	}
}

func TestHealthStatusConstants(t *testing.T) {
	if StatusHealthy != "healthy" {
		t.Errorf("expected 'healthy', got %q", StatusHealthy)
	}
	if StatusUnhealthy != "unhealthy" {
		t.Errorf("expected 'unhealthy', got %q", StatusUnhealthy)
	}
	if StatusDegraded != "degraded" {
		t.Errorf("expected 'degraded', got %q", StatusDegraded)
	}
}

func TestStopAllCombinesErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{name: "a", stopErr: fmt.Errorf("a failed")})
	r.Register(&mockComponent{name: "b", stopErr: fmt.Errorf("b failed")})
	r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if err == nil {
		t.Fatal("expected error from StopAll")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Errorf("expected 2 combined errors, got %d", got)
	}
}

func TestStarted(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{name: "timer"})
	r.Register(&mockComponent{name: "topic", startErr: fmt.Errorf("bind failed")})

	if r.Started("timer") {
		t.Error("expected timer not started before StartAll")
	}
	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !r.Started("timer") || r.Started("topic") || r.Started("missing") {
		t.Error("expected only timer to be started")
	}
	r.StopAll(context.Background())
	if r.Started("timer") {
		t.Error("expected timer stopped")
	}
}

type slowComponent struct{ mockComponent }

func (s *slowComponent) Stop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStopTimeout(t *testing.T) {
	r := NewRegistry(WithStopTimeout(10 * time.Millisecond))
	r.Register(&slowComponent{mockComponent{name: "watch"}})
	r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestStartAllSkipsStarted(t *testing.T) {
	r := NewRegistry()
	order := []string{}
	r.Register(&mockComponent{name: "timer", startOrder: &order})

	r.StartAll(context.Background())
	r.StartAll(context.Background())
	if len(order) != 1 {
		t.Errorf("expected one start, got %d", len(order))
	}
}

func TestLazy(t *testing.T) {
	initialized := false
	l := NewLazy("subscription", func(ctx context.Context) error {
		initialized = true
		return nil
	})

	if l.Name() != "subscription" {
		t.Errorf("expected name 'subscription', got %q", l.Name())
	}
	if l.IsInitialized() {
		t.Error("expected not initialized before Initialize()")
	}
	if h := l.Health(); h.Status != StatusDegraded {
		t.Errorf("expected degraded before init, got %s", h.Status)
	}

	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !initialized {
		t.Error("expected initializer to be called")
	}
	if h := l.Health(); h.Status != StatusHealthy {
		t.Errorf("expected healthy after init, got %s", h.Status)
	}
}

func TestLazyConcurrentInitOnce(t *testing.T) {
	var count atomic.Int32
	l := NewLazy("svc", func(ctx context.Context) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Initialize(context.Background())
		}()
	}
	wg.Wait()
	if count.Load() != 1 {
		t.Errorf("expected initializer called once, got %d", count.Load())
	}
}

func TestLazyRetriesAfterFailure(t *testing.T) {
	attempts := 0
	l := NewLazy("svc", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("source unavailable")
		}
		return nil
	})

	if err := l.Initialize(context.Background()); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	if l.LastError() == nil {
		t.Error("expected last error to be recorded")
	}
	if h := l.Health(); h.Status != StatusUnhealthy || h.Message != "source unavailable" {
		t.Errorf("unexpected health %+v", h)
	}
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if l.LastError() != nil {
		t.Error("expected last error cleared")
	}
}

func TestLazyNoInitializer(t *testing.T) {
	l := NewLazy("svc", nil)
	if err := l.Initialize(context.Background()); err == nil {
		t.Error("expected error without initializer")
	}
}
