// Package app wires the drill tasks onto the kernel and a HAL.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"drill/drillos/display"
	"drill/drillos/kernel"
	"drill/drillos/proto"
	"drill/drillos/random"
	"drill/drillos/services/logger"
	"drill/drillos/tasks/fnd"
	"drill/drillos/tasks/problem"
	"drill/drillos/tasks/stat"
	"drill/hal"
	"drill/internal/buildinfo"
)

const logQueueCapacity = 64

var errLimitReached = errors.New("app: problem limit reached")

// System is one configured instance of the drill.
type System struct {
	h     hal.HAL
	cfg   Config
	k     *kernel.Kernel
	runID uuid.UUID
	log   *slog.Logger

	gate     *kernel.Gate
	ready    *kernel.Signal
	problems *kernel.Queue[proto.Problem]
	logQ     *kernel.Queue[[]byte]
	logW     *logger.Writer
	logSvc   *logger.Service

	random   *random.Guarded
	renderer *display.Renderer
	producer *problem.Task
	consumer *fnd.Task

	rendered atomic.Uint32
	cancel   context.CancelCauseFunc

	// trace observes publish and render events.
	trace func(event string, p proto.Problem)
}

// New builds the kernel objects and registers every task.
func New(h hal.HAL, cfg Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &System{
		h:        h,
		cfg:      cfg,
		k:        kernel.New(),
		runID:    uuid.New(),
		gate:     kernel.NewGate(),
		ready:    kernel.NewSignal(),
		problems: kernel.NewQueue[proto.Problem](cfg.Queue.Capacity),
		logQ:     kernel.NewQueue[[]byte](logQueueCapacity),
	}
	s.logW = logger.NewWriter(s.logQ)
	s.log = logger.Setup(cfg.Log, s.logW).With("run", s.runID.String())
	s.logSvc = logger.New(h.Logger(), s.logQ)
	s.random = random.NewGuarded(random.New(cfg.Random.Seed), s.gate)

	var fb hal.Framebuffer
	if d := h.Display(); d != nil {
		fb = d.Framebuffer()
	}
	s.renderer = display.New(display.Config{
		Segments:    h.Segments(),
		Framebuffer: fb,
		LED:         h.LED(),
		Clock:       s.k,
		Cadence:     ticks(cfg.Display.Cadence),
		Log:         s.log.With("task", "fnd"),
	})

	s.producer = problem.New(problem.Config{
		Random: s.random,
		Queue:  s.problems,
		Ready:  s.ready,
		Timeouts: problem.Timeouts{
			Gate:    cfg.Timeouts.Gate,
			Queue:   cfg.Timeouts.Queue,
			Handoff: cfg.Timeouts.Handoff,
		},
		Log:       s.log.With("task", "problem"),
		OnPublish: s.onPublish,
	})
	s.consumer = fnd.New(fnd.Config{
		Queue:    s.problems,
		Ready:    s.ready,
		Renderer: s.renderer,
		Timeouts: fnd.Timeouts{Queue: cfg.Timeouts.Queue},
		Log:      s.log.With("task", "fnd"),
		OnRender: s.onRender,
	})

	type entry struct {
		name string
		prio uint8
		task kernel.Task
	}
	tasks := []entry{
		{"problem", cfg.Tasks.ProducerPriority, s.producer},
		{"fnd", cfg.Tasks.ConsumerPriority, s.consumer},
		{"logger", cfg.Tasks.LoggerPriority, s.logSvc},
	}
	if cfg.Stats.Enabled {
		tasks = append(tasks, entry{"stat", cfg.Tasks.StatPriority, stat.New(stat.Config{
			Source:   s.k,
			Interval: ticks(cfg.Stats.Interval),
			Log:      s.log.With("task", "stat"),
		})})
	}
	for _, t := range tasks {
		if _, err := s.k.AddTask(t.name, kernel.Priority(t.prio), t.task); err != nil {
			return nil, fmt.Errorf("app: add task %s: %w", t.name, err)
		}
	}

	s.k.Observe("gate", func() any { return s.gate.Stats() })
	s.k.Observe("ready", func() any { return s.ready.Stats() })
	s.k.Observe("problems", func() any { return s.problems.Stats() })
	s.k.Observe("random", func() any { return map[string]uint64{"draws": s.random.Draws()} })
	s.k.Observe("log", func() any {
		return map[string]uint64{"dropped": s.logW.Dropped(), "queued": uint64(s.logQ.Len())}
	})

	installPanicHandler(h, s.renderer)
	return s, nil
}

// ticks converts d into kernel ticks, rounding up to at least one.
func ticks(d time.Duration) uint64 {
	n := uint64((d + hal.TickDuration - 1) / hal.TickDuration)
	if n == 0 {
		n = 1
	}
	return n
}

func (s *System) onPublish(p proto.Problem) {
	if s.trace != nil {
		s.trace("publish", p)
	}
}

func (s *System) onRender(p proto.Problem, err error) {
	if s.trace != nil {
		s.trace("render", p)
	}
	n := s.rendered.Add(1)
	if limit := s.cfg.Run.MaxProblems; limit > 0 && n >= limit && s.cancel != nil {
		s.cancel(errLimitReached)
	}
}

// Run feeds HAL ticks to the kernel and runs every task until ctx ends, a
// task fails or the configured problem limit is reached. Reaching the limit
// returns nil.
func (s *System) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.cancel = cancel

	s.log.Info("boot",
		buildinfo.Attr(),
		"queue", s.cfg.Queue.Capacity,
		"seed", s.cfg.Random.Seed,
		"max_problems", s.cfg.Run.MaxProblems)

	if ht := s.h.Time(); ht != nil {
		if ch := ht.Ticks(); ch != nil {
			go func() {
				for {
					select {
					case seq := <-ch:
						s.k.TickTo(seq)
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	err := s.k.Run(ctx)
	if errors.Is(context.Cause(ctx), errLimitReached) {
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("kernel stopped", "err", err)
	} else {
		s.log.Info("shutdown", "rendered", s.rendered.Load())
	}
	s.logSvc.Flush()
	return err
}

// Rendered returns the number of problems shown so far.
func (s *System) Rendered() uint32 { return s.rendered.Load() }

// Kernel exposes the kernel for inspection.
func (s *System) Kernel() *kernel.Kernel { return s.k }

// Start runs a new System in the background and returns a step function for
// the HAL runners. The step reports hal.ErrStop once the system finished
// cleanly and the run error otherwise.
func Start(ctx context.Context, h hal.HAL, cfg Config) (func() error, error) {
	s, err := New(h, cfg)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var result error
	finished := false
	return func() error {
		if !finished {
			select {
			case err := <-done:
				finished = true
				result = err
				if result == nil {
					result = hal.ErrStop
				}
			default:
				return nil
			}
		}
		return result
	}, nil
}

// RunForever runs a System on h with the default configuration and blocks.
func RunForever(h hal.HAL) {
	s, err := New(h, DefaultConfig())
	if err != nil {
		h.Logger().WriteLineString("drill: " + err.Error())
		select {}
	}
	_ = s.Run(context.Background())
	select {}
}
