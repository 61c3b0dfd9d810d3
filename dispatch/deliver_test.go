package dispatch

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliveriesBound(t *testing.T) {
	d := NewDeliveries(2)
	if d.Limit() != 2 {
		t.Fatalf("expected limit 2, got %d", d.Limit())
	}

	release := make(chan struct{})
	var running, peak atomic.Int32
	for i := 0; i < 2; i++ {
		if err := d.Go(context.Background(), func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}); err != nil {
			t.Fatalf("Go failed: %v", err)
		}
	}

	// Every slot is taken, so a third delivery waits until ctx ends.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := d.Go(ctx, func() { ran = true })
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	close(release)
	d.Wait()
	if ran {
		t.Error("delivery must not run after Go failed")
	}
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent deliveries, got %d", peak.Load())
	}

	// A freed slot is reused.
	done := make(chan struct{})
	if err := d.Go(context.Background(), func() { close(done) }); err != nil {
		t.Fatalf("Go after release failed: %v", err)
	}
	d.Wait()
	select {
	case <-done:
	default:
		t.Error("expected delivery to run")
	}
}

func TestDeliveriesDefaultLimit(t *testing.T) {
	if got := NewDeliveries(0).Limit(); got != DefaultMaxInFlight {
		t.Errorf("expected %d, got %d", DefaultMaxInFlight, got)
	}
}
