// Package problem implements the task that generates arithmetic problems.
package problem

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
	"drill/drillos/random"
)

const (
	operandBound  = 10000
	operatorBound = proto.OperatorCount
)

// State is the producer's position in its generate/publish cycle.
type State uint8

const (
	GenerateOperand1 State = iota
	GenerateOperand2
	GenerateOperator
	ApplyDigitConstraint
	Publish
	AwaitConsumer
)

func (s State) String() string {
	switch s {
	case GenerateOperand1:
		return "generate-operand1"
	case GenerateOperand2:
		return "generate-operand2"
	case GenerateOperator:
		return "generate-operator"
	case ApplyDigitConstraint:
		return "apply-digit-constraint"
	case Publish:
		return "publish"
	case AwaitConsumer:
		return "await-consumer"
	default:
		return "unknown"
	}
}

// Timeouts bounds each blocking step. Zero waits forever.
type Timeouts struct {
	Gate    time.Duration
	Queue   time.Duration
	Handoff time.Duration
}

type Config struct {
	Random   *random.Guarded
	Queue    *kernel.Queue[proto.Problem]
	Ready    *kernel.Signal
	Timeouts Timeouts
	Log      *slog.Logger

	// OnPublish, if set, is called once per problem just before it is queued.
	OnPublish func(proto.Problem)
}

// Task draws two operands and an operator, fits the operands to the
// operator's digit limit, queues the problem and waits for the consumer to
// finish with it before starting over.
type Task struct {
	cfg Config

	mu        sync.Mutex
	state     State
	cur       proto.Problem
	seq       uint32
	announced bool
	published uint32
}

func New(cfg Config) *Task {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Task{cfg: cfg}
}

// Constrain reduces the operands to the operator's digit limit: three digits
// for Add, two for Mul.
func Constrain(op1, op2 uint16, op proto.Operator) (uint16, uint16) {
	switch op {
	case proto.OpAdd, proto.OpMul:
		limit := op.Limit()
		return op1 % limit, op2 % limit
	default:
		return op1, op2
	}
}

func (t *Task) Run(ctx *kernel.Context) error {
	for {
		if err := t.Step(ctx); err != nil {
			return err
		}
	}
}

// Step executes the current state once.
//
// A timed-out wait leaves the state unchanged so the same step is retried.
// Any other error, including ctx ending, is returned.
func (t *Task) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	err := t.exec(ctx, state)
	if errors.Is(err, kernel.ErrTimeout) {
		t.cfg.Log.Warn("wait timed out, retrying", "state", state.String())
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("problem: %s: %w", state, err)
	}
	return nil
}

func (t *Task) exec(ctx context.Context, state State) error {
	switch state {
	case GenerateOperand1:
		v, err := t.cfg.Random.Draw(ctx, operandBound, t.cfg.Timeouts.Gate)
		if err != nil {
			return err
		}
		t.advance(func(p *proto.Problem) { *p = proto.Problem{Operand1: v} }, GenerateOperand2)

	case GenerateOperand2:
		v, err := t.cfg.Random.Draw(ctx, operandBound, t.cfg.Timeouts.Gate)
		if err != nil {
			return err
		}
		t.advance(func(p *proto.Problem) { p.Operand2 = v }, GenerateOperator)

	case GenerateOperator:
		v, err := t.cfg.Random.Draw(ctx, operatorBound, t.cfg.Timeouts.Gate)
		if err != nil {
			return err
		}
		t.advance(func(p *proto.Problem) { p.Op = proto.Operator(v) }, ApplyDigitConstraint)

	case ApplyDigitConstraint:
		t.advance(func(p *proto.Problem) {
			p.Operand1, p.Operand2 = Constrain(p.Operand1, p.Operand2, p.Op)
		}, Publish)

	case Publish:
		p := t.announce()
		if err := t.cfg.Queue.Push(ctx, p, t.cfg.Timeouts.Queue); err != nil {
			return err
		}
		t.cfg.Log.Debug("published", "seq", p.Seq, "problem", p.String(), "op", p.Op.Name())
		t.mu.Lock()
		t.announced = false
		t.published++
		t.state = AwaitConsumer
		t.mu.Unlock()

	case AwaitConsumer:
		if err := t.cfg.Ready.Wait(ctx, t.cfg.Timeouts.Handoff); err != nil {
			return err
		}
		t.advance(func(*proto.Problem) {}, GenerateOperand1)

	default:
		return fmt.Errorf("bad state %d", state)
	}
	return nil
}

func (t *Task) advance(update func(*proto.Problem), next State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	update(&t.cur)
	t.state = next
}

// announce numbers the current problem and reports it to OnPublish exactly
// once, however many times the push is retried.
func (t *Task) announce() proto.Problem {
	t.mu.Lock()
	if t.announced {
		p := t.cur
		t.mu.Unlock()
		return p
	}
	t.seq++
	t.cur.Seq = t.seq
	t.announced = true
	p := t.cur
	t.mu.Unlock()

	if t.cfg.OnPublish != nil {
		t.cfg.OnPublish(p)
	}
	return p
}

// State returns the state the next Step will execute.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Current returns the problem being built or the last one published.
func (t *Task) Current() proto.Problem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// Published returns how many problems have been queued.
func (t *Task) Published() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.published
}
