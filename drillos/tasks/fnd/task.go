// Package fnd implements the task that shows queued problems on the
// segment display.
package fnd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"drill/drillos/kernel"
	"drill/drillos/proto"
)

// Renderer presents one problem to the user.
type Renderer interface {
	Render(ctx context.Context, p proto.Problem) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, p proto.Problem) error

func (f RendererFunc) Render(ctx context.Context, p proto.Problem) error { return f(ctx, p) }

type State uint8

const (
	AwaitProblem State = iota
	Render
	SignalProducer
)

func (s State) String() string {
	switch s {
	case AwaitProblem:
		return "await-problem"
	case Render:
		return "render"
	case SignalProducer:
		return "signal-producer"
	default:
		return "unknown"
	}
}

type Timeouts struct {
	Queue time.Duration
}

type Config struct {
	Queue    *kernel.Queue[proto.Problem]
	Ready    *kernel.Signal
	Renderer Renderer
	Timeouts Timeouts
	Log      *slog.Logger

	// OnRender, if set, is called after each render attempt and before the
	// producer is signalled.
	OnRender func(p proto.Problem, err error)
}

// Task pops one problem, renders it and tells the producer it may continue.
type Task struct {
	cfg Config

	mu       sync.Mutex
	state    State
	cur      proto.Problem
	rendered uint32
	failed   uint32
}

func New(cfg Config) *Task {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Task{cfg: cfg}
}

func (t *Task) Run(ctx *kernel.Context) error {
	for {
		if err := t.Step(ctx); err != nil {
			return err
		}
	}
}

// Step executes the current state once. An empty queue that times out is
// retried on the next call.
func (t *Task) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	state, cur := t.state, t.cur
	t.mu.Unlock()

	switch state {
	case AwaitProblem:
		p, err := t.cfg.Queue.Pop(ctx, t.cfg.Timeouts.Queue)
		if errors.Is(err, kernel.ErrTimeout) {
			t.cfg.Log.Debug("no problem queued")
			return nil
		}
		if err != nil {
			return t.fail(ctx, state, err)
		}
		t.set(p, Render)

	case Render:
		err := t.render(ctx, cur)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.mu.Lock()
		if err != nil {
			t.failed++
		} else {
			t.rendered++
		}
		t.mu.Unlock()
		if err != nil {
			t.cfg.Log.Error("render failed", "seq", cur.Seq, "problem", cur.String(), "err", err)
		} else {
			t.cfg.Log.Info("problem", "seq", cur.Seq, "problem", cur.String())
		}
		if t.cfg.OnRender != nil {
			t.cfg.OnRender(cur, err)
		}
		t.set(cur, SignalProducer)

	case SignalProducer:
		if err := t.cfg.Ready.Signal(); err != nil {
			if !errors.Is(err, kernel.ErrSemOverflow) {
				return t.fail(ctx, state, err)
			}
			t.cfg.Log.Warn("producer already signalled", "seq", cur.Seq)
		}
		t.set(cur, AwaitProblem)

	default:
		return fmt.Errorf("fnd: bad state %d", state)
	}
	return nil
}

func (t *Task) render(ctx context.Context, p proto.Problem) error {
	if t.cfg.Renderer == nil {
		return nil
	}
	return t.cfg.Renderer.Render(ctx, p)
}

func (t *Task) fail(ctx context.Context, state State, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("fnd: %s: %w", state, err)
}

func (t *Task) set(p proto.Problem, next State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = p
	t.state = next
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Rendered returns the number of successful and failed renders.
func (t *Task) Rendered() (ok, failed uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rendered, t.failed
}
