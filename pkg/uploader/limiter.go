package uploader

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Limiter bounds the number of concurrently executing work units. Units
// beyond the limit queue in FIFO order; every queued unit eventually runs
// unless its queue slot is cleared.
//
// A failing unit only fails its own Run call; peers are unaffected.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	active  int
	pending *list.List // of *waiter
}

type waiter struct {
	ready   chan struct{}
	cleared bool
}

// NewLimiter creates a limiter with the given parallelism. limit must be
// positive.
func NewLimiter(limit int) (*Limiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, limit)
	}
	return &Limiter{
		limit:   limit,
		pending: list.New(),
	}, nil
}

// Run executes fn once the active count drops below the limit, blocking
// in FIFO order behind earlier submissions. It returns fn's error, or
// ErrQueueCleared if the pending slot was discarded before fn started,
// or the context error if ctx is done first.
func (l *Limiter) Run(ctx context.Context, fn func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()

	return fn()
}

func (l *Limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.active < l.limit && l.pending.Len() == 0 {
		l.active++
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	elem := l.pending.PushBack(w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		if w.cleared {
			return ErrQueueCleared
		}
		// The releaser incremented active on our behalf.
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.ready:
			// Lost the race with a release or clear; honor the outcome.
			l.mu.Unlock()
			if w.cleared {
				return ErrQueueCleared
			}
			l.release()
			return ctx.Err()
		default:
			l.pending.Remove(elem)
			l.mu.Unlock()
			return ctx.Err()
		}
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active--
	l.dispatchLocked()
}

// dispatchLocked hands free slots to pending waiters in FIFO order.
// Callers must hold l.mu.
func (l *Limiter) dispatchLocked() {
	for l.active < l.limit && l.pending.Len() > 0 {
		elem := l.pending.Front()
		l.pending.Remove(elem)

		w := elem.Value.(*waiter)
		l.active++
		close(w.ready)
	}
}

// UpdateLimit changes the parallelism for subsequent acquisitions.
// Already-active units continue under the old discipline. n must be
// positive.
func (l *Limiter) UpdateLimit(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, n)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit = n
	l.dispatchLocked()
	return nil
}

// Limit returns the current parallelism.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// ActiveCount returns the number of currently executing units.
func (l *Limiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// PendingCount returns the number of queued, not yet started units.
func (l *Limiter) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Len()
}

// ClearQueue discards every pending unit; their Run calls return
// ErrQueueCleared. Active units are not touched.
func (l *Limiter) ClearQueue() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for elem := l.pending.Front(); elem != nil; elem = elem.Next() {
		w := elem.Value.(*waiter)
		w.cleared = true
		close(w.ready)
	}
	l.pending.Init()
}
