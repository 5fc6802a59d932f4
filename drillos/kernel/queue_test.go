package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](3)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := q.Push(ctx, i, testTimeout); err != nil {
			t.Fatalf("Push(%d) err = %v", i, err)
		}
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	for want := 1; want <= 3; want++ {
		got, err := q.Pop(ctx, testTimeout)
		if err != nil {
			t.Fatalf("Pop() err = %v", err)
		}
		if got != want {
			t.Fatalf("Pop() = %d, want %d", got, want)
		}
	}
}

func TestQueueWrapsAround(t *testing.T) {
	q := NewQueue[int](3)
	next := 0
	for round := 0; round < 10; round++ {
		for i := 0; i < 2; i++ {
			if err := q.TryPush(round*2 + i); err != nil {
				t.Fatalf("TryPush() err = %v at round %d", err, round)
			}
		}
		for i := 0; i < 2; i++ {
			v, err := q.TryPop()
			if err != nil {
				t.Fatalf("TryPop() err = %v at round %d", err, round)
			}
			if v != next {
				t.Fatalf("TryPop() = %d, want %d", v, next)
			}
			next++
		}
	}
}

func TestQueueTryPushFull(t *testing.T) {
	q := NewQueue[string](1)
	if err := q.TryPush("a"); err != nil {
		t.Fatalf("TryPush() on empty queue err = %v", err)
	}
	if err := q.TryPush("b"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("TryPush() on full queue err = %v, want ErrQueueFull", err)
	}
	if st := q.Stats(); st.Rejects != 1 || st.Len != 1 || st.Cap != 1 {
		t.Fatalf("Stats() = %+v, want 1 reject, len 1, cap 1", st)
	}
}

func TestQueueTryPopEmpty(t *testing.T) {
	q := NewQueue[int](2)
	if _, err := q.TryPop(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("TryPop() on empty queue err = %v, want ErrQueueEmpty", err)
	}
}

func TestQueueMinimumCapacity(t *testing.T) {
	if got := NewQueue[int](0).Cap(); got != 1 {
		t.Fatalf("Cap() = %d, want 1", got)
	}
}

func TestQueuePopTimeout(t *testing.T) {
	q := NewQueue[int](1)
	_, err := q.Pop(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Pop() err = %v, want ErrTimeout", err)
	}
	if st := q.Stats(); st.Timeouts != 1 || st.Waiting != 0 {
		t.Fatalf("Stats() = %+v, want 1 timeout and no waiters", st)
	}
}

func TestQueuePushTimeoutWhenFull(t *testing.T) {
	q := NewQueue[int](1)
	_ = q.TryPush(1)
	err := q.Push(context.Background(), 2, 10*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Push() err = %v, want ErrTimeout", err)
	}
	if v, _ := q.TryPop(); v != 1 {
		t.Fatalf("TryPop() = %d, want 1", v)
	}
}

func TestQueueBlockedPushResumesAfterPop(t *testing.T) {
	q := NewQueue[int](1)
	_ = q.TryPush(1)

	done := make(chan error, 1)
	go func() { done <- q.Push(context.Background(), 2, 0) }()
	waitForWaiters(t, func() int { return q.Stats().Waiting }, 1)

	if v, err := q.TryPop(); err != nil || v != 1 {
		t.Fatalf("TryPop() = %d, %v, want 1, nil", v, err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Push() err = %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for blocked Push")
	}
	if v, err := q.TryPop(); err != nil || v != 2 {
		t.Fatalf("TryPop() = %d, %v, want 2, nil", v, err)
	}
}

func TestQueueBlockedPopReceivesPush(t *testing.T) {
	q := NewQueue[int](3)
	got := make(chan int, 1)
	go func() {
		v, err := q.Pop(context.Background(), 0)
		if err != nil {
			t.Errorf("Pop() err = %v", err)
		}
		got <- v
	}()
	waitForWaiters(t, func() int { return q.Stats().Waiting }, 1)

	if err := q.TryPush(42); err != nil {
		t.Fatalf("TryPush() err = %v", err)
	}
	select {
	case v := <-got:
		if v != 42 {
			t.Fatalf("Pop() = %d, want 42", v)
		}
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for blocked Pop")
	}
}

func TestQueuePopCancelled(t *testing.T) {
	q := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("Pop() err = %v, want context.Canceled", err)
	}
}

func TestQueueAbandonPassesOnWakeup(t *testing.T) {
	q := NewQueue[int](1)
	q.mu.Lock()
	first := q.receivers.add(1)
	second := q.receivers.add(2)
	q.mu.Unlock()

	// The push hands its wakeup to first, which then gives up as if its
	// timeout had fired at the same moment.
	if err := q.TryPush(7); err != nil {
		t.Fatalf("TryPush() err = %v", err)
	}
	if !first.woken() {
		t.Fatal("first waiter not woken by push")
	}

	q.mu.Lock()
	q.abandon(&q.receivers, first)
	waiting := q.receivers.len()
	q.mu.Unlock()

	if !second.woken() {
		t.Fatal("second waiter not woken, wakeup was lost")
	}
	if waiting != 0 {
		t.Fatalf("receivers = %d, want 0", waiting)
	}
	if v, err := q.TryPop(); err != nil || v != 7 {
		t.Fatalf("TryPop() = %d, %v, want 7, nil", v, err)
	}
}

func TestQueueAbandonRemovesUnwokenWaiter(t *testing.T) {
	q := NewQueue[int](1)
	q.mu.Lock()
	first := q.receivers.add(1)
	second := q.receivers.add(2)
	q.abandon(&q.receivers, first)
	waiting := q.receivers.len()
	q.mu.Unlock()

	if second.woken() {
		t.Fatal("second waiter woken without a push")
	}
	if waiting != 1 {
		t.Fatalf("receivers = %d, want 1", waiting)
	}
}

func TestQueueConcurrentFIFOWithTimeouts(t *testing.T) {
	const (
		items   = 20000
		timeout = 50 * time.Microsecond
	)
	if testing.Short() {
		t.Skip("long-running interleaving test")
	}

	q := NewQueue[int](3)
	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < items; {
			err := q.Push(ctx, i, timeout)
			switch {
			case err == nil:
				i++
			case errors.Is(err, ErrTimeout):
			default:
				t.Errorf("Push(%d) err = %v", i, err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for want := 0; want < items; {
			v, err := q.Pop(ctx, timeout)
			switch {
			case err == nil:
				if v != want {
					t.Errorf("Pop() = %d, want %d", v, want)
					return
				}
				want++
			case errors.Is(err, ErrTimeout):
			default:
				t.Errorf("Pop() err = %v", err)
				return
			}
		}
	}()

	wg.Wait()
	st := q.Stats()
	if st.Len != 0 || st.Waiting != 0 || st.Pushes != items || st.Pops != items {
		t.Fatalf("Stats() = %+v, want drained queue with %d pushes and pops", st, items)
	}
}

func TestQueueManyTimedWaitersLoseNothing(t *testing.T) {
	const (
		producers = 3
		consumers = 2
		perSender = 2000
		timeout   = 20 * time.Microsecond
	)

	q := NewQueue[[2]int](1)
	ctx := context.Background()
	received := make(chan [2]int, producers*perSender)
	var pending sync.WaitGroup
	pending.Add(producers * perSender)

	var senders sync.WaitGroup
	for p := 0; p < producers; p++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for i := 0; i < perSender; {
				err := q.Push(WithPriority(ctx, Priority(p)), [2]int{p, i}, timeout)
				if err == nil {
					i++
				} else if !errors.Is(err, ErrTimeout) {
					t.Errorf("Push() err = %v", err)
					return
				}
			}
		}()
	}

	stop := make(chan struct{})
	var receivers sync.WaitGroup
	for c := 0; c < consumers; c++ {
		receivers.Add(1)
		go func() {
			defer receivers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v, err := q.Pop(WithPriority(ctx, Priority(10+c)), timeout)
				if err == nil {
					received <- v
					pending.Done()
				} else if !errors.Is(err, ErrTimeout) {
					t.Errorf("Pop() err = %v", err)
					return
				}
			}
		}()
	}

	senders.Wait()
	pending.Wait()
	close(stop)
	receivers.Wait()
	close(received)

	seen := make(map[[2]int]bool, producers*perSender)
	for v := range received {
		if seen[v] {
			t.Fatalf("message %v delivered twice", v)
		}
		seen[v] = true
	}
	if len(seen) != producers*perSender {
		t.Fatalf("delivered %d messages, want %d", len(seen), producers*perSender)
	}
	if st := q.Stats(); st.Len != 0 || st.Waiting != 0 {
		t.Fatalf("Stats() = %+v, want empty queue and no waiters", st)
	}
}
