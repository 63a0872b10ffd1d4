package dataquery

import (
	"context"
	"time"
)

// ConnectionPool is a bounded, process-wide-shared acquire/use/release
// semaphore standing in for the underlying engine's real connection pool.
// Acquisition is bounded by acquireTimeout; exceeding it surfaces as
// ErrPoolExhausted (spec §5 "Shared resource policy").
type ConnectionPool struct {
	slots          chan struct{}
	acquireTimeout time.Duration
}

// NewConnectionPool creates a pool with the given size (default 20 per
// spec §5) and acquisition timeout (default 30s).
func NewConnectionPool(size int, acquireTimeout time.Duration) *ConnectionPool {
	if size <= 0 {
		size = 20
	}
	if acquireTimeout <= 0 {
		acquireTimeout = 30 * time.Second
	}
	return &ConnectionPool{
		slots:          make(chan struct{}, size),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire blocks until a slot is free, ctx is cancelled, or acquireTimeout
// elapses — whichever comes first. The returned release func must be
// called exactly once.
func (p *ConnectionPool) Acquire(ctx context.Context) (release func(), err error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-acquireCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolExhausted
	}
}
