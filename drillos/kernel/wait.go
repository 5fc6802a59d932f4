package kernel

import (
	"context"
	"errors"
	"time"

	"github.com/gammazero/deque"
)

// ErrTimeout is returned when a bounded wait elapses.
var ErrTimeout = errors.New("kernel: timeout")

type waiter struct {
	prio  Priority
	ready chan struct{}
}

func (w *waiter) woken() bool {
	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

// waitList keeps blocked callers ordered by priority, FIFO among equals.
// The owner's mutex guards it.
type waitList struct {
	q deque.Deque[*waiter]
}

func (l *waitList) add(prio Priority) *waiter {
	w := &waiter{prio: prio, ready: make(chan struct{})}
	for i := 0; i < l.q.Len(); i++ {
		if l.q.At(i).prio > prio {
			l.q.Insert(i, w)
			return w
		}
	}
	l.q.PushBack(w)
	return w
}

// wakeOne releases the most urgent waiter.
func (l *waitList) wakeOne() bool {
	if l.q.Len() == 0 {
		return false
	}
	close(l.q.PopFront().ready)
	return true
}

func (l *waitList) remove(w *waiter) {
	if i := l.q.Index(func(x *waiter) bool { return x == w }); i >= 0 {
		l.q.Remove(i)
	}
}

// withdraw takes w off the list after a failed block. It reports whether w
// had already been woken, in which case the wakeup is still owned by w.
func (l *waitList) withdraw(w *waiter) bool {
	if w.woken() {
		return true
	}
	l.remove(w)
	return false
}

func (l *waitList) len() int { return l.q.Len() }

// block waits for w to be woken, the deadline to pass or ctx to end.
// A zero deadline waits forever.
func block(ctx context.Context, w *waiter, deadline time.Time) error {
	resume := suspend(ctx)
	defer resume()

	if deadline.IsZero() {
		select {
		case <-w.ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d := time.Until(deadline)
	if d <= 0 {
		return ErrTimeout
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ready:
		return nil
	case <-t.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
