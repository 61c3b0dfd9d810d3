package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight bounds concurrent deliveries of a source when none is
// configured.
const DefaultMaxInFlight = 64

// Deliveries runs a source's callback invocations on their own goroutines,
// at most a fixed number at a time. A listener that never returns then
// holds one slot instead of the source's receive loop.
type Deliveries struct {
	limit int64
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
}

// NewDeliveries bounds concurrent deliveries to limit. A limit below one
// uses DefaultMaxInFlight.
func NewDeliveries(limit int) *Deliveries {
	if limit < 1 {
		limit = DefaultMaxInFlight
	}
	return &Deliveries{limit: int64(limit), sem: semaphore.NewWeighted(int64(limit))}
}

// Go runs fn on a new goroutine once a slot is free. It blocks while every
// slot is taken and returns ctx.Err() without running fn if ctx ends first.
func (d *Deliveries) Go(ctx context.Context, fn func()) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		fn()
	}()
	return nil
}

// Wait blocks until every delivery started by Go has returned.
func (d *Deliveries) Wait() { d.wg.Wait() }

// Limit returns the concurrency bound.
func (d *Deliveries) Limit() int { return int(d.limit) }
