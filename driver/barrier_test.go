// barrier_test.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package driver

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// No goroutine may leave phase k before every party has entered it, and the
// barrier must be reusable across phases.
func TestPhaseBarrierRendezvous(t *testing.T) {
	const parties = 8
	const phases = 5

	b := NewPhaseBarrier(parties)
	var arrived [phases]atomic.Int32
	var failures atomic.Int32

	var wg sync.WaitGroup
	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for phase := 0; phase < phases; phase++ {
				arrived[phase].Add(1)
				b.Wait()
				if arrived[phase].Load() != parties {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, failures.Load())
}

func TestPhaseBarrierSingleParty(t *testing.T) {
	b := NewPhaseBarrier(1)
	done := make(chan struct{})
	go func() {
		b.Wait()
		b.Wait()
		close(done)
	}()
	<-done
}
