// Package gate provides the counting admission gate that bounds how many
// fetches may be in flight at once.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/concurrent-scraper/internal/metrics"
)

// ErrClosed is returned by Acquire once the gate has been closed.
var ErrClosed = errors.New("admission gate closed")

// Gate grants at most capacity simultaneous permits. Waiters are served in
// FIFO order, so no acquirer starves while permits keep being released.
type Gate struct {
	capacity int64
	sem      *semaphore.Weighted

	closeCtx  context.Context
	closeFn   context.CancelFunc
	closeOnce sync.Once

	inFlight  atomic.Int64
	highWater atomic.Int64
}

// New builds a Gate with the given capacity, which must be positive.
func New(capacity int) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("gate capacity must be > 0, got %d", capacity)
	}
	closeCtx, closeFn := context.WithCancel(context.Background())
	return &Gate{
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		closeCtx: closeCtx,
		closeFn:  closeFn,
	}, nil
}

// Acquire blocks until a permit is available, ctx is done, or the gate is
// closed. Every successful Acquire must be paired with exactly one Release.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.closeCtx.Err() != nil {
		return ErrClosed
	}
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(g.closeCtx, cancel)
	defer stop()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if g.closeCtx.Err() != nil {
			return ErrClosed
		}
		return fmt.Errorf("acquire permit: %w", ctx.Err())
	}
	if g.closeCtx.Err() != nil {
		g.sem.Release(1)
		return ErrClosed
	}

	current := g.inFlight.Add(1)
	for {
		peak := g.highWater.Load()
		if current <= peak || g.highWater.CompareAndSwap(peak, current) {
			break
		}
	}
	metrics.IncInFlight()
	return nil
}

// Release returns a permit obtained from Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	metrics.DecInFlight()
	g.sem.Release(1)
}

// Close wakes every waiter and makes later Acquire calls fail with ErrClosed.
// Permits already held stay valid until released. Close is idempotent.
func (g *Gate) Close() {
	g.closeOnce.Do(g.closeFn)
}

// Capacity returns the maximum number of simultaneous permits.
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// HighWater returns the largest number of permits ever held at once.
func (g *Gate) HighWater() int {
	return int(g.highWater.Load())
}
