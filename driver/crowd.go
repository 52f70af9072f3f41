// crowd.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package driver

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
	"github.com/kgasperich/miniqmc/timers"
	"github.com/kgasperich/miniqmc/wavefunction"
)

// Crowd drives a set of walkers through the move protocol in lockstep, one
// electron index at a time. Walker slots live in a fixed arena; the validity
// mask and the dense batch index list are rebuilt from scratch for every
// electron index and never persist across steps.
//
// Every phase is a separate full pass over the walkers, so a later phase
// only ever reads results the earlier phase finished producing. Per walker,
// the outcomes are identical to running that walker alone through its Mover:
// all randomness comes from the walker's own stream, so batch composition
// cannot change any decision.
type Crowd struct {
	Movers []*Mover

	cfg Config
	spo wavefunction.SPOSet

	valid    []bool
	batch    []int
	accepted []bool
	ratios   []float64

	pos   []r3.Vec
	vals  [][]float64
	grads [][]r3.Vec
	laps  [][]float64
}

// NewCrowd builds one walker per seed.
func NewCrowd(seeds []uint64, ions *particle.ParticleSet, spo wavefunction.SPOSet, cfg Config) (*Crowd, error) {
	if len(seeds) == 0 {
		return nil, errors.New("driver: crowd needs at least one walker")
	}
	nels := particle.CountElectrons(ions)
	c := &Crowd{
		cfg:      cfg,
		spo:      spo,
		Movers:   make([]*Mover, len(seeds)),
		valid:    make([]bool, len(seeds)),
		batch:    make([]int, 0, len(seeds)),
		accepted: make([]bool, len(seeds)),
		ratios:   make([]float64, len(seeds)),
		pos:      make([]r3.Vec, len(seeds)),
		vals:     make([][]float64, len(seeds)),
		grads:    make([][]r3.Vec, len(seeds)),
		laps:     make([][]float64, len(seeds)),
	}
	for w, seed := range seeds {
		m, err := NewMover(seed, ions, spo, cfg)
		if err != nil {
			return nil, fmt.Errorf("walker %d: %w", w, err)
		}
		c.Movers[w] = m
		c.vals[w] = make([]float64, nels)
		c.grads[w] = make([]r3.Vec, nels)
		c.laps[w] = make([]float64, nels)
	}
	return c, nil
}

// advanceElectron runs the phase sequence for one electron index across all
// walkers: gradient at the current position, propose, batch build, batched
// ratio evaluation, accept test, commit.
func (c *Crowd) advanceElectron(iel int) error {
	// current-position gradient: reads committed state only, draws nothing
	tg := c.timer(timers.EvalGrad)
	tg.Start()
	for _, m := range c.Movers {
		m.WF.GradCurrent(m.Els, iel)
	}
	tg.Stop()

	// proposal phase: independent per walker, no cross-walker reads
	for w, m := range c.Movers {
		c.valid[w] = m.proposeMove(iel)
	}

	// batch build: dense index list over walkers with valid proposals
	c.batch = c.batch[:0]
	for w := range c.Movers {
		if c.valid[w] {
			c.batch = append(c.batch, w)
		}
	}
	if len(c.batch) == 0 {
		return nil
	}

	// evaluation phase: one vectorized oracle call for the whole batch,
	// then the per-walker ratio arithmetic from the precomputed rows
	nb := len(c.batch)
	tr := c.timer(timers.RatioGrad)
	tr.Start()
	for b, w := range c.batch {
		c.pos[b] = c.Movers[w].Els.ActivePos()
	}
	if err := c.spo.EvaluateBatchVGL(c.pos[:nb], c.vals[:nb], c.grads[:nb], c.laps[:nb]); err != nil {
		tr.Stop()
		return fmt.Errorf("driver: batched orbital evaluation: %w", err)
	}
	for b, w := range c.batch {
		m := c.Movers[w]
		var grad r3.Vec
		c.ratios[b] = m.WF.RatioGradFromRow(m.Els, iel, c.vals[b], c.grads[b], c.laps[b], &grad)
	}
	tr.Stop()

	// accept phase: each decision is a function of the walker's own stream
	for b, w := range c.batch {
		c.accepted[b] = c.Movers[w].decideMove()
	}

	// commit phase
	tu := c.timer(timers.Update)
	tu.Start()
	defer tu.Stop()
	for b, w := range c.batch {
		m := c.Movers[w]
		if c.accepted[b] {
			m.Els.AcceptMove(iel)
			if err := m.WF.AcceptMove(m.Els, iel); err != nil {
				return fmt.Errorf("walker %d: %w", w, err)
			}
			m.Accepted++
		} else {
			m.WF.Restore(iel)
			m.Els.RejectMove(iel)
		}
	}
	return nil
}

// RunStep advances every walker through one Monte Carlo step.
func (c *Crowd) RunStep() error {
	nels := c.Movers[0].Els.N()
	td := c.timer(timers.Diffusion)
	td.Start()
	for l := 0; l < c.cfg.Substeps; l++ {
		for iel := 0; iel < nels; iel++ {
			if err := c.advanceElectron(iel); err != nil {
				td.Stop()
				return err
			}
		}
	}
	td.Stop()

	tv := c.timer(timers.Value)
	tv.Start()
	for w, m := range c.Movers {
		if err := m.FinishStep(); err != nil {
			tv.Stop()
			return fmt.Errorf("walker %d: %w", w, err)
		}
	}
	tv.Stop()

	te := c.timer(timers.ECP)
	te.Start()
	err := c.evaluateNLPPBatched()
	te.Stop()
	return err
}

func (c *Crowd) timer(name string) *timers.Timer {
	if c.cfg.Timers == nil {
		return nil
	}
	return c.cfg.Timers.Get(name)
}

// Run advances all steps of the configuration.
func (c *Crowd) Run() error {
	for mc := 0; mc < c.cfg.Steps; mc++ {
		if err := c.RunStep(); err != nil {
			return fmt.Errorf("step %d: %w", mc, err)
		}
	}
	return nil
}

// evaluateNLPPBatched processes pair index i for every walker in lockstep.
// Walkers with fewer than i pairs sit that iteration out. Per walker the
// ratios are the ones the sequential pass would produce: orientation and
// pair list come from the walker's own state, and every probe is discarded.
func (c *Crowd) evaluateNLPPBatched() error {
	nw := len(c.Movers)
	knots := make([][]r3.Vec, nw)
	pairs := make([][]EiPair, nw)
	passSum := make([]float64, nw)
	maxPairs := 0
	for w, m := range c.Movers {
		knots[w] = m.NLPP.Randomize(m.Rng)
		pairs[w] = m.NLPP.BuildPairList(m.Els, m.Ions, m.dt)
		if len(pairs[w]) > maxPairs {
			maxPairs = len(pairs[w])
		}
	}

	for i := 0; i < maxPairs; i++ {
		for w, m := range c.Movers {
			if i >= len(pairs[w]) {
				continue
			}
			p := pairs[w][i]
			v, err := m.evalPair(p, knots[w], m.dt.D[p.El][p.Ion], m.Ions.R[p.Ion])
			if err != nil {
				return fmt.Errorf("walker %d pair %d: %w", w, i, err)
			}
			// pass sums accumulate per walker in pair order, exactly as
			// the sequential pass does, and fold in once at the end
			passSum[w] += v
		}
	}
	for w, m := range c.Movers {
		m.NLPPSum += passSum[w]
	}
	return nil
}

// RunThreaded is the thread-per-walker execution model: every walker's state
// is owned by exactly one goroutine and the only synchronization is the
// rendezvous at each step boundary.
func RunThreaded(movers []*Mover, cfg Config) error {
	barrier := NewPhaseBarrier(len(movers))
	errs := make([]error, len(movers))
	var wg sync.WaitGroup
	for w, m := range movers {
		wg.Add(1)
		go func(w int, m *Mover) {
			defer wg.Done()
			for mc := 0; mc < cfg.Steps; mc++ {
				if errs[w] == nil {
					if err := m.RunStep(cfg); err != nil {
						errs[w] = fmt.Errorf("walker %d step %d: %w", w, mc, err)
					}
				}
				// a failed walker still honors the rendezvous so the
				// rest of the team is not deadlocked
				barrier.Wait()
			}
		}(w, m)
	}
	wg.Wait()
	return errors.Join(errs...)
}
