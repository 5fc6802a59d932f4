package kernel

import "context"

// Context provides task-local access to kernel operations.
//
// It is a context.Context cancelled when the kernel stops, so it can be
// passed straight to semaphores and queues.
type Context struct {
	context.Context
	k *Kernel
	t *taskState
}

type taskKey struct{}

type priorityKey struct{}

// TaskID returns the current task ID.
func (c *Context) TaskID() TaskID { return c.t.id }

// Name returns the name the task was registered under.
func (c *Context) Name() string { return c.t.name }

// Priority returns the task priority.
func (c *Context) Priority() Priority { return c.t.prio }

// NowTick returns the last observed tick value.
func (c *Context) NowTick() uint64 {
	if c.k == nil {
		return 0
	}
	return c.k.NowTick()
}

// WaitTick blocks until tick advances past the provided value and returns the new tick.
func (c *Context) WaitTick(after uint64) (uint64, error) {
	if c.k == nil {
		return 0, c.Err()
	}
	return c.k.WaitTick(c, after)
}

// Delay blocks the task for n ticks.
func (c *Context) Delay(n uint64) error {
	if c.k == nil {
		return c.Err()
	}
	return c.k.Delay(c, n)
}

// WithPriority returns a context whose waits are ordered at prio. It lets
// goroutines that are not kernel tasks take part in priority wakeups.
func WithPriority(ctx context.Context, prio Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, prio)
}

// PriorityOf reports the wait priority carried by ctx.
func PriorityOf(ctx context.Context) Priority {
	if ctx == nil {
		return LowestPriority
	}
	if st, ok := ctx.Value(taskKey{}).(*taskState); ok && st != nil {
		return st.prio
	}
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return LowestPriority
}

// suspend marks the calling task blocked and returns the matching resume.
func suspend(ctx context.Context) func() {
	if ctx == nil {
		return func() {}
	}
	st, ok := ctx.Value(taskKey{}).(*taskState)
	if !ok || st == nil {
		return func() {}
	}
	st.state.Store(uint32(TaskBlocked))
	st.blocks.Add(1)
	st.k.switches.Add(1)
	return func() { st.state.Store(uint32(TaskRunning)) }
}
