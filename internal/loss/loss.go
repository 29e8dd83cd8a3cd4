// Package loss implements the protocol's loss-simulation hook: a
// replaceable strategy for probabilistically discarding received frames,
// used both to model an unreliable medium and to drive deterministic
// tests.
package loss

import (
	"math/rand"
	"sync"
)

// Dropper decides whether a just-received, non-empty frame should be
// discarded before it reaches any table mutation. n is the frame's length
// in bytes, provided for strategies that care about it; most don't.
type Dropper interface {
	Drop(n int) bool
}

// Probabilistic drops frames with fixed probability p, using a PRNG seeded
// once at construction (e.g. from a wall-clock source at socket create).
// Determinism is not a contract of this strategy.
type Probabilistic struct {
	p   float64
	mu  sync.Mutex
	rng *rand.Rand
}

// NewProbabilistic returns a Dropper that discards frames with probability
// p (0 <= p <= 1), seeded from seed.
func NewProbabilistic(p float64, seed int64) *Probabilistic {
	return &Probabilistic{p: p, rng: rand.New(rand.NewSource(seed))}
}

// Drop implements Dropper.
func (d *Probabilistic) Drop(int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() < d.p
}

// Always never lets a frame through. Useful for exercising the
// table-full / backpressure boundary behavior.
type Always struct{}

// Drop implements Dropper.
func (Always) Drop(int) bool { return true }

// Never lets every frame through. Useful for verifying drain-within-2T
// behavior with zero simulated loss.
type Never struct{}

// Drop implements Dropper.
func (Never) Drop(int) bool { return false }

// Sequence drops frames at specific zero-based call indices, letting tests
// express scenarios like "drop only the first ACK" or "drop only the
// first data frame" deterministically.
type Sequence struct {
	mu    sync.Mutex
	drop  map[int]bool
	calls int
}

// NewSequence returns a Dropper that discards the call at each index in
// indices (0-based, counting every invocation of Drop) and lets all
// others through.
func NewSequence(indices ...int) *Sequence {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	return &Sequence{drop: drop}
}

// Drop implements Dropper.
func (s *Sequence) Drop(int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	return s.drop[idx]
}
