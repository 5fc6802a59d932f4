// Package stat implements the periodic statistics task.
package stat

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sugawarayuuta/sonnet"

	"drill/drillos/kernel"
)

// Source supplies kernel snapshots.
type Source interface {
	Stats() kernel.Stats
}

type Config struct {
	Source Source

	// Interval is the reporting period in ticks.
	Interval uint64
	Log      *slog.Logger
}

// Task logs the number of task switches per interval and a JSON snapshot of
// every task and kernel object.
type Task struct {
	cfg          Config
	lastSwitches uint64
}

func New(cfg Config) *Task {
	if cfg.Interval == 0 {
		cfg.Interval = 1000
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Task{cfg: cfg}
}

func (t *Task) Run(ctx *kernel.Context) error {
	if s := t.cfg.Source; s != nil {
		t.lastSwitches = s.Stats().Switches
	}
	next := ctx.NowTick() + t.cfg.Interval
	for {
		now, err := ctx.WaitTick(next - 1)
		if err != nil {
			return err
		}
		if err := t.Report(ctx); err != nil {
			return err
		}
		next = now + t.cfg.Interval
	}
}

// Report logs one statistics line and returns the switch count since the
// previous report.
func (t *Task) Report(ctx context.Context) error {
	if t.cfg.Source == nil {
		return nil
	}
	st := t.cfg.Source.Stats()
	delta := st.Switches - t.lastSwitches
	t.lastSwitches = st.Switches

	snap, err := sonnet.Marshal(st)
	if err != nil {
		return fmt.Errorf("stat: marshal: %w", err)
	}
	t.cfg.Log.InfoContext(ctx, "stats",
		"tick", st.Tick,
		"switches", delta,
		"tasks", len(st.Tasks),
		"snapshot", string(snap))
	return nil
}
