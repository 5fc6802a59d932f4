package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drill/drillos/kernel"
	"drill/drillos/proto"
	"drill/hal"
)

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *testLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *testLogger) text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

type testSegments struct {
	mu     sync.Mutex
	frames []string
}

func (s *testSegments) Digits() int { return 4 }

func (s *testSegments) Show(masks []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, hal.DecodeSegments(masks))
	return nil
}

func (s *testSegments) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return ""
	}
	return s.frames[len(s.frames)-1]
}

type nopLED struct{}

func (nopLED) High() {}
func (nopLED) Low()  {}

type testTime struct {
	ch chan uint64
}

func (t testTime) Ticks() <-chan uint64 { return t.ch }

type testHAL struct {
	log *testLogger
	seg *testSegments
	t   testTime
}

func newTestHAL(t *testing.T) *testHAL {
	h := &testHAL{
		log: &testLogger{},
		seg: &testSegments{},
		t:   testTime{ch: make(chan uint64)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		tk := time.NewTicker(200 * time.Microsecond)
		defer tk.Stop()
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				seq++
				select {
				case h.t.ch <- seq:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return h
}

func (h *testHAL) Logger() hal.Logger     { return h.log }
func (h *testHAL) LED() hal.LED           { return nopLED{} }
func (h *testHAL) Display() hal.Display   { return nil }
func (h *testHAL) Segments() hal.Segments { return h.seg }
func (h *testHAL) Time() hal.Time         { return h.t }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Random.Seed = 1
	cfg.Display.Cadence = time.Millisecond
	cfg.Stats.Interval = 5 * time.Millisecond
	cfg.Run.MaxProblems = 6
	return cfg
}

func TestTicksRoundsUp(t *testing.T) {
	assert.Equal(t, uint64(200), ticks(200*time.Millisecond))
	assert.Equal(t, uint64(1), ticks(0))
	assert.Equal(t, uint64(2), ticks(1500*time.Microsecond))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Tasks.ConsumerPriority = cfg.Tasks.ProducerPriority
	_, err := New(newTestHAL(t), cfg)
	require.ErrorContains(t, err, "invalid config")
}

func TestSystemAlternatesPublishAndRender(t *testing.T) {
	h := newTestHAL(t)
	s, err := New(h, testConfig())
	require.NoError(t, err)

	var mu sync.Mutex
	type event struct {
		kind string
		p    proto.Problem
	}
	var events []event
	s.trace = func(kind string, p proto.Problem) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event{kind, p})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 12)
	for i := 0; i < len(events); i += 2 {
		pub, ren := events[i], events[i+1]
		assert.Equal(t, "publish", pub.kind)
		assert.Equal(t, "render", ren.kind)
		assert.Equal(t, pub.p, ren.p)
		assert.Equal(t, uint32(i/2+1), pub.p.Seq)
		assert.Truef(t, pub.p.Valid(), "invalid problem %s", pub.p)
	}
	assert.Equal(t, uint32(6), s.Rendered())
	assert.Equal(t, "    ", h.seg.last())

	out := h.log.text()
	assert.Contains(t, out, "msg=boot")
	assert.Contains(t, out, "msg=problem")
	assert.Contains(t, out, "run="+s.runID.String())
	assert.Contains(t, out, "msg=shutdown")

	st := s.Kernel().Stats()
	assert.Contains(t, st.Objects, "gate")
	assert.Contains(t, st.Objects, "problems")
	assert.Positive(t, st.Switches)
}

func TestSystemStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxProblems = 0
	s, err := New(newTestHAL(t), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Rendered() >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStartReportsStop(t *testing.T) {
	cfg := testConfig()
	cfg.Run.MaxProblems = 2
	step, err := Start(context.Background(), newTestHAL(t), cfg)
	require.NoError(t, err)

	var last error
	require.Eventually(t, func() bool {
		last = step()
		return last != nil
	}, 5*time.Second, time.Millisecond)
	require.ErrorIs(t, last, hal.ErrStop)
	require.ErrorIs(t, step(), hal.ErrStop)
}

func TestPanicHandlerShowsError(t *testing.T) {
	h := newTestHAL(t)
	s, err := New(h, testConfig())
	require.NoError(t, err)
	installPanicHandler(h, s.renderer)
	defer kernel.SetPanicHandler(nil)

	k := kernel.New()
	_, err = k.AddTask("crash", 1, kernel.TaskFunc(func(*kernel.Context) error {
		panic("segment bus stuck")
	}))
	require.NoError(t, err)
	require.Error(t, k.Run(context.Background()))

	out := h.log.text()
	assert.Contains(t, out, "Drill Panic:")
	assert.Contains(t, out, "task: 0 (crash)")
	assert.Contains(t, out, "panic: segment bus stuck")
	assert.Equal(t, "Err ", h.seg.last())
}
