package kernel

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by TryPush when no slot is free.
	ErrQueueFull = errors.New("kernel: queue full")
	// ErrQueueEmpty is returned by TryPop when nothing is queued.
	ErrQueueEmpty = errors.New("kernel: queue empty")
)

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Len      int    `json:"len"`
	Cap      int    `json:"cap"`
	Waiting  int    `json:"waiting"`
	Pushes   uint64 `json:"pushes"`
	Pops     uint64 `json:"pops"`
	Blocks   uint64 `json:"blocks"`
	Timeouts uint64 `json:"timeouts"`
	Rejects  uint64 `json:"rejects"`
}

// Queue is a fixed-capacity FIFO of typed messages.
//
// Push blocks while the queue is full and Pop while it is empty; blocked
// callers are resumed in priority order.
type Queue[T any] struct {
	mu    sync.Mutex
	head  uint64
	tail  uint64
	slots []T

	senders   waitList
	receivers waitList
	stats     QueueStats
}

// NewQueue creates a queue holding at most capacity messages (minimum 1).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{slots: make([]T, capacity)}
}

func (q *Queue[T]) full() bool  { return q.head-q.tail >= uint64(len(q.slots)) }
func (q *Queue[T]) empty() bool { return q.head == q.tail }

func (q *Queue[T]) put(v T) {
	q.slots[q.head%uint64(len(q.slots))] = v
	q.head++
	q.stats.Pushes++
	q.receivers.wakeOne()
}

func (q *Queue[T]) take() T {
	var zero T
	i := q.tail % uint64(len(q.slots))
	v := q.slots[i]
	q.slots[i] = zero
	q.tail++
	q.stats.Pops++
	q.senders.wakeOne()
	return v
}

// Push appends v, blocking while the queue is full.
//
// A timeout of 0 waits until ctx is done. An elapsed timeout returns ErrTimeout.
func (q *Queue[T]) Push(ctx context.Context, v T, timeout time.Duration) error {
	deadline := deadlineFor(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.full() {
		if err := q.wait(ctx, &q.senders, deadline); err != nil {
			return err
		}
	}
	q.put(v)
	return nil
}

// Pop removes the oldest message, blocking while the queue is empty.
func (q *Queue[T]) Pop(ctx context.Context, timeout time.Duration) (T, error) {
	deadline := deadlineFor(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.empty() {
		if err := q.wait(ctx, &q.receivers, deadline); err != nil {
			var zero T
			return zero, err
		}
	}
	return q.take(), nil
}

// wait parks the caller on l. It is entered and left with q.mu held.
func (q *Queue[T]) wait(ctx context.Context, l *waitList, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := l.add(PriorityOf(ctx))
	q.stats.Blocks++
	q.mu.Unlock()
	err := block(ctx, w, deadline)
	q.mu.Lock()
	if err == nil {
		return nil
	}
	q.abandon(l, w)
	if errors.Is(err, ErrTimeout) {
		q.stats.Timeouts++
	}
	return err
}

// abandon withdraws a waiter whose block failed. A wakeup it already
// received is passed to the next waiter on l so the slot is not lost.
func (q *Queue[T]) abandon(l *waitList, w *waiter) {
	if l.withdraw(w) {
		l.wakeOne()
	}
}

// TryPush appends v without blocking. It returns ErrQueueFull when no slot
// is free.
func (q *Queue[T]) TryPush(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full() {
		q.stats.Rejects++
		return ErrQueueFull
	}
	q.put(v)
	return nil
}

// TryPop removes the oldest message without blocking. It returns
// ErrQueueEmpty when nothing is queued.
func (q *Queue[T]) TryPop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.empty() {
		var zero T
		return zero, ErrQueueEmpty
	}
	return q.take(), nil
}

// Len returns the number of queued messages.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.head - q.tail)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int { return len(q.slots) }

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := q.stats
	st.Len = int(q.head - q.tail)
	st.Cap = len(q.slots)
	st.Waiting = q.senders.len() + q.receivers.len()
	return st
}
