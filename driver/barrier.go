// barrier.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------

// Package driver advances walkers through Monte Carlo steps: a per-walker
// move engine, a threaded runner with sweep-boundary barriers, and a batched
// runner that groups valid trial moves for vectorized evaluation.
package driver

import "sync"

// PhaseBarrier is a reusable synchronous rendezvous for a fixed set of
// participants. Every participant blocks in Wait until all have arrived,
// then all are released and the barrier resets for the next phase. No
// timeout and no cancellation: a run either completes or the process dies.
type PhaseBarrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	waiting    int
	generation int
}

// NewPhaseBarrier creates a barrier for n participants. n must be >= 1.
func NewPhaseBarrier(n int) *PhaseBarrier {
	b := &PhaseBarrier{parties: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all participants have called Wait for this phase.
func (b *PhaseBarrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}
