// Package gate bounds how many operations may be in flight at once.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a pool of interchangeable permits. Waiters are served in FIFO
// order.
type Gate struct {
	sem   *semaphore.Weighted
	limit int
	held  atomic.Int64
}

// New creates a Gate holding limit permits. A limit below 1 is raised to 1.
func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Acquire blocks until a permit is available. It only fails when ctx ends
// before a permit could be obtained; in that case no permit is held.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.held.Add(1)
	return nil
}

// TryAcquire takes a permit without blocking.
func (g *Gate) TryAcquire() bool {
	if !g.sem.TryAcquire(1) {
		return false
	}
	g.held.Add(1)
	return true
}

// Release returns one permit to the pool. Releasing more permits than were
// acquired panics.
func (g *Gate) Release() {
	g.held.Add(-1)
	g.sem.Release(1)
}

// Limit returns the pool size.
func (g *Gate) Limit() int {
	return g.limit
}

// InUse returns the number of permits currently held.
func (g *Gate) InUse() int {
	return int(g.held.Load())
}
