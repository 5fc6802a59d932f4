// Package random provides the shared operand generator of the drill.
package random

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"drill/drillos/kernel"
)

// Generator yields raw 32-bit values.
type Generator interface {
	Uint32() uint32
}

// Source maps raw generator output onto bounded draws.
//
// A Source is not safe for concurrent use; wrap it in Guarded to share it
// between tasks.
type Source struct {
	gen   Generator
	draws atomic.Uint64
}

// New returns a PCG-backed Source. A zero seed is replaced by the current
// time.
func New(seed uint64) *Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return NewFrom(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewFrom wraps an existing generator.
func NewFrom(g Generator) *Source {
	return &Source{gen: g}
}

// Next returns raw % bound. A zero bound returns 0 without consuming a value.
func (s *Source) Next(bound uint16) uint16 {
	if bound == 0 {
		return 0
	}
	s.draws.Add(1)
	return uint16(s.gen.Uint32() % uint32(bound))
}

// Draws returns how many values have been taken from the source.
func (s *Source) Draws() uint64 { return s.draws.Load() }

// Script replays a fixed list of raw values, cycling when exhausted.
type Script struct {
	vals []uint32
	pos  int
}

func NewScript(vals ...uint32) *Script {
	return &Script{vals: vals}
}

func (s *Script) Uint32() uint32 {
	if len(s.vals) == 0 {
		return 0
	}
	v := s.vals[s.pos%len(s.vals)]
	s.pos++
	return v
}

// Guarded serialises draws from a Source through a Gate.
type Guarded struct {
	src  *Source
	gate *kernel.Gate
}

func NewGuarded(src *Source, gate *kernel.Gate) *Guarded {
	return &Guarded{src: src, gate: gate}
}

// Draw holds the gate for exactly one Next call.
func (g *Guarded) Draw(ctx context.Context, bound uint16, timeout time.Duration) (uint16, error) {
	if err := g.gate.Acquire(ctx, timeout); err != nil {
		return 0, err
	}
	defer func() { _ = g.gate.Release() }()
	return g.src.Next(bound), nil
}

// Gate returns the gate guarding the source.
func (g *Guarded) Gate() *kernel.Gate { return g.gate }

// Draws returns the number of values drawn so far.
func (g *Guarded) Draws() uint64 { return g.src.Draws() }
