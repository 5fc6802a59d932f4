package kernel

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const maxTasks = 32

type TaskID uint8

// Priority orders tasks and waiters. Lower values are more urgent.
type Priority uint8

// LowestPriority is used for callers that are not kernel tasks.
const LowestPriority Priority = 255

var (
	ErrPriorityExists = errors.New("kernel: priority already in use")
	ErrTooManyTasks   = errors.New("kernel: too many tasks")
	ErrKernelRunning  = errors.New("kernel: already running")
)

// Task is a unit of execution with its own goroutine.
//
// Run should return when ctx is done. Returning ctx's error is treated as a
// clean exit.
type Task interface {
	Run(ctx *Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx *Context) error

func (f TaskFunc) Run(ctx *Context) error { return f(ctx) }

// TaskState is the coarse scheduling state of a task.
type TaskState uint32

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocked
	TaskDone
	TaskPanicked
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskDone:
		return "done"
	case TaskPanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

type taskState struct {
	k    *Kernel
	id   TaskID
	name string
	prio Priority
	task Task

	state  atomic.Uint32
	blocks atomic.Uint64
}

type observer struct {
	name string
	fn   func() any
}

// Kernel registers tasks, runs each one on its own goroutine and provides
// the tick timebase the tasks block on.
type Kernel struct {
	mu        sync.Mutex
	tasks     []*taskState
	observers []observer
	running   bool

	tickMu sync.Mutex
	tick   uint64
	tickCh chan struct{}

	switches atomic.Uint64
}

// New creates a kernel instance.
func New() *Kernel {
	return &Kernel{tickCh: make(chan struct{})}
}

// AddTask registers a task under a unique priority and returns its ID.
func (k *Kernel) AddTask(name string, prio Priority, t Task) (TaskID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return 0, ErrKernelRunning
	}
	if len(k.tasks) >= maxTasks {
		return 0, ErrTooManyTasks
	}
	for _, st := range k.tasks {
		if st.prio == prio {
			return 0, fmt.Errorf("%w: %d (%s)", ErrPriorityExists, prio, st.name)
		}
	}

	id := TaskID(len(k.tasks))
	k.tasks = append(k.tasks, &taskState{k: k, id: id, name: name, prio: prio, task: t})
	return id, nil
}

// Observe registers a named stats source reported by Stats.
func (k *Kernel) Observe(name string, fn func() any) {
	if fn == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.observers = append(k.observers, observer{name: name, fn: fn})
}

// Run starts every registered task in priority order and blocks until all
// of them have returned. The first task error cancels the others.
//
// When ctx is cancelled Run returns ctx.Err().
func (k *Kernel) Run(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return ErrKernelRunning
	}
	k.running = true
	tasks := slices.Clone(k.tasks)
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.running = false
		k.mu.Unlock()
	}()

	slices.SortStableFunc(tasks, func(a, b *taskState) int { return cmp.Compare(a.prio, b.prio) })

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range tasks {
		st.state.Store(uint32(TaskReady))
		g.Go(func() error { return k.runTask(gctx, st) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (k *Kernel) runTask(ctx context.Context, st *taskState) (err error) {
	c := &Context{Context: context.WithValue(ctx, taskKey{}, st), k: k, t: st}
	st.state.Store(uint32(TaskRunning))

	defer func() {
		if r := recover(); r != nil {
			st.state.Store(uint32(TaskPanicked))
			triggerPanic(PanicInfo{TaskID: st.id, Task: st.name, Value: r})
			err = fmt.Errorf("kernel: task %s panicked: %v", st.name, r)
			return
		}
		st.state.Store(uint32(TaskDone))
	}()

	err = st.task.Run(c)
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
		return nil
	}
	return fmt.Errorf("kernel: task %s: %w", st.name, err)
}

// TickTo advances the tick counter to seq and wakes tick waiters.
// Values at or below the current tick are ignored.
func (k *Kernel) TickTo(seq uint64) {
	k.tickMu.Lock()
	if seq <= k.tick {
		k.tickMu.Unlock()
		return
	}
	k.tick = seq
	ch := k.tickCh
	k.tickCh = make(chan struct{})
	k.tickMu.Unlock()
	close(ch)
}

// Tick advances the tick counter by one.
func (k *Kernel) Tick() {
	k.TickTo(k.NowTick() + 1)
}

// NowTick returns the current tick.
func (k *Kernel) NowTick() uint64 {
	k.tickMu.Lock()
	defer k.tickMu.Unlock()
	return k.tick
}

// WaitTick blocks until the tick advances past after and returns the new tick.
func (k *Kernel) WaitTick(ctx context.Context, after uint64) (uint64, error) {
	var resume func()
	defer func() {
		if resume != nil {
			resume()
		}
	}()

	for {
		k.tickMu.Lock()
		now, ch := k.tick, k.tickCh
		k.tickMu.Unlock()
		if now > after {
			return now, nil
		}
		if resume == nil {
			resume = suspend(ctx)
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return now, ctx.Err()
		}
	}
}

// Delay blocks for the given number of ticks.
func (k *Kernel) Delay(ctx context.Context, ticks uint64) error {
	if ticks == 0 {
		return ctx.Err()
	}
	_, err := k.WaitTick(ctx, k.NowTick()+ticks-1)
	return err
}

// TaskStats describes one task in a Stats snapshot.
type TaskStats struct {
	ID       TaskID   `json:"id"`
	Name     string   `json:"name"`
	Priority Priority `json:"priority"`
	State    string   `json:"state"`
	Blocks   uint64   `json:"blocks"`
}

// Stats is a point-in-time view of the kernel.
type Stats struct {
	Tick     uint64         `json:"tick"`
	Switches uint64         `json:"switches"`
	Tasks    []TaskStats    `json:"tasks"`
	Objects  map[string]any `json:"objects,omitempty"`
}

// Stats returns a snapshot of task states, the switch counter and every
// observed object.
func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	tasks := slices.Clone(k.tasks)
	observers := slices.Clone(k.observers)
	k.mu.Unlock()

	s := Stats{
		Tick:     k.NowTick(),
		Switches: k.switches.Load(),
		Tasks:    make([]TaskStats, 0, len(tasks)),
	}
	for _, st := range tasks {
		s.Tasks = append(s.Tasks, TaskStats{
			ID:       st.id,
			Name:     st.name,
			Priority: st.prio,
			State:    TaskState(st.state.Load()).String(),
			Blocks:   st.blocks.Load(),
		})
	}
	if len(observers) > 0 {
		s.Objects = make(map[string]any, len(observers))
		for _, o := range observers {
			s.Objects[o.name] = o.fn()
		}
	}
	return s
}
