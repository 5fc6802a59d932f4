package kernel

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSemOverflow is returned by Post when the count is already at its maximum.
var ErrSemOverflow = errors.New("kernel: semaphore overflow")

// SemStats is a snapshot of semaphore counters.
type SemStats struct {
	Count     uint32 `json:"count"`
	Max       uint32 `json:"max"`
	Waiting   int    `json:"waiting"`
	Pends     uint64 `json:"pends"`
	Posts     uint64 `json:"posts"`
	Blocks    uint64 `json:"blocks"`
	Timeouts  uint64 `json:"timeouts"`
	Overflows uint64 `json:"overflows"`
}

// Semaphore is a counting semaphore whose waiters are released in priority order.
type Semaphore struct {
	mu      sync.Mutex
	count   uint32
	max     uint32
	waiters waitList
	stats   SemStats
}

// NewSemaphore creates a semaphore with the given initial count.
// max bounds the count; 0 means 65535.
func NewSemaphore(initial, max uint32) *Semaphore {
	if max == 0 {
		max = 65535
	}
	if initial > max {
		initial = max
	}
	return &Semaphore{count: initial, max: max}
}

// Pend decrements the count, blocking while it is zero.
//
// A timeout of 0 waits until ctx is done. An elapsed timeout returns ErrTimeout.
func (s *Semaphore) Pend(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	s.stats.Pends++
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return nil
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	w := s.waiters.add(PriorityOf(ctx))
	s.stats.Blocks++
	s.mu.Unlock()

	err := block(ctx, w, deadlineFor(timeout))
	if err == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiters.withdraw(w) {
		// Post handed the unit over while we were giving up.
		return nil
	}
	if errors.Is(err, ErrTimeout) {
		s.stats.Timeouts++
	}
	return err
}

// TryPend decrements the count if it is positive and reports whether it did.
func (s *Semaphore) TryPend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Pends++
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

// Post releases one unit, handing it to the most urgent waiter if any.
func (s *Semaphore) Post() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiters.wakeOne() {
		s.stats.Posts++
		return nil
	}
	if s.count >= s.max {
		s.stats.Overflows++
		return ErrSemOverflow
	}
	s.count++
	s.stats.Posts++
	return nil
}

// Count returns the current count.
func (s *Semaphore) Count() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Stats returns a snapshot of the semaphore counters.
func (s *Semaphore) Stats() SemStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Count = s.count
	st.Max = s.max
	st.Waiting = s.waiters.len()
	return st
}

// Gate is a mutual exclusion semaphore: initial count 1, at most one holder.
type Gate struct {
	sem *Semaphore
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{sem: NewSemaphore(1, 1)}
}

// Acquire blocks until the caller holds the gate.
func (g *Gate) Acquire(ctx context.Context, timeout time.Duration) error {
	return g.sem.Pend(ctx, timeout)
}

// TryAcquire takes the gate if it is free.
func (g *Gate) TryAcquire() bool { return g.sem.TryPend() }

// Release hands the gate to the most urgent waiter or reopens it.
// Releasing an open gate returns ErrSemOverflow.
func (g *Gate) Release() error { return g.sem.Post() }

func (g *Gate) Stats() SemStats { return g.sem.Stats() }

// Signal is a binary rendezvous: initial count 0, at most one pending signal.
type Signal struct {
	sem *Semaphore
}

// NewSignal returns an unsignalled Signal.
func NewSignal() *Signal {
	return &Signal{sem: NewSemaphore(0, 1)}
}

// Wait blocks until Signal has been called, consuming it.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) error {
	return s.sem.Pend(ctx, timeout)
}

// Signal wakes the waiter or leaves one pending signal.
// Signalling while a signal is already pending returns ErrSemOverflow.
func (s *Signal) Signal() error { return s.sem.Post() }

// Pending reports whether a signal is waiting to be consumed.
func (s *Signal) Pending() bool { return s.sem.Count() > 0 }

func (s *Signal) Stats() SemStats { return s.sem.Stats() }
