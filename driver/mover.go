// mover.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package driver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
	"github.com/kgasperich/miniqmc/rng"
	"github.com/kgasperich/miniqmc/timers"
	"github.com/kgasperich/miniqmc/wavefunction"
)

// Config carries the simulation parameters shared by all walkers.
type Config struct {
	Steps    int
	Substeps int
	Tau      float64 // diffusion time step; trial displacements scale with sqrt(tau)
	Accept   float64 // fixed acceptance probability of the benchmark
	Rmax     float64 // pseudopotential cutoff

	// Backend picks the determinant implementation; nil means the
	// incremental Sherman-Morrison backend.
	Backend BackendFactory

	// Timers, when non-nil, collects per-phase wall clock. Walkers
	// driven from separate goroutines must not share a manager.
	Timers *timers.Manager
}

// BackendFactory builds a determinant backend per walker.
type BackendFactory func(spo wavefunction.SPOSet, nels int) (wavefunction.MatrixBackend, error)

// Validate rejects parameter sets the run cannot survive.
func (c Config) Validate() error {
	if c.Steps < 1 || c.Substeps < 1 {
		return fmt.Errorf("driver: steps and substeps must be >= 1, got %d and %d", c.Steps, c.Substeps)
	}
	if c.Tau <= 0 {
		return fmt.Errorf("driver: tau must be positive, got %g", c.Tau)
	}
	if c.Accept < 0 || c.Accept > 1 {
		return fmt.Errorf("driver: accept must lie in [0,1], got %g", c.Accept)
	}
	if c.Rmax <= 0 {
		return fmt.Errorf("driver: Rmax must be positive, got %g", c.Rmax)
	}
	return nil
}

// Mover is one walker's move engine: its particle set, wavefunction, random
// stream and pseudopotential state, all walker-exclusive. Per electron it
// runs the propose / evaluate / accept-or-reject protocol; electrons are
// processed strictly in index order because each accepted move must be
// folded into the inverse before the next electron's ratio is evaluated.
type Mover struct {
	Rng  *rng.Stream
	Els  *particle.ParticleSet
	Ions *particle.ParticleSet
	WF   *wavefunction.WaveFunction
	NLPP *NonLocalPP

	Accepted int     // accumulated accepted moves
	Attempts int     // accumulated proposals
	NLPPSum  float64 // accumulated pseudopotential sum

	dt      *particle.DistanceTable
	sqrtTau float64
	accept  float64
	tm      *timers.Manager
}

// timer returns the named phase timer, or a nil no-op timer when the walker
// runs without instrumentation.
func (m *Mover) timer(name string) *timers.Timer {
	if m.tm == nil {
		return nil
	}
	return m.tm.Get(name)
}

// NewMover assembles a walker from its seed. Walkers with the same seed and
// configuration are identical in every outcome.
func NewMover(seed uint64, ions *particle.ParticleSet, spo wavefunction.SPOSet, cfg Config) (*Mover, error) {
	stream := rng.NewStream(seed)
	nels := particle.CountElectrons(ions)
	els := particle.BuildElectrons(nels, ions.Lattice, stream)

	factory := cfg.Backend
	if factory == nil {
		factory = func(spo wavefunction.SPOSet, nels int) (wavefunction.MatrixBackend, error) {
			return wavefunction.NewDiracDeterminant(spo, nels)
		}
	}
	det, err := factory(spo, nels)
	if err != nil {
		return nil, err
	}
	wf := wavefunction.New(det, wavefunction.NewGaussianJastrow(ions, 0.5, 1.0))
	if err := wf.EvaluateLog(els); err != nil {
		return nil, err
	}

	return &Mover{
		Rng:     stream,
		Els:     els,
		Ions:    ions,
		WF:      wf,
		NLPP:    NewNonLocalPP(cfg.Rmax),
		dt:      particle.NewDistanceTable(nels, ions.N()),
		sqrtTau: math.Sqrt(cfg.Tau),
		accept:  cfg.Accept,
		tm:      cfg.Timers,
	}, nil
}

// proposeMove draws the Gaussian trial displacement for electron iel and
// stores the wrapped trial position. Always consumes exactly three normal
// draws; consumes no uniform draw. Returns false on cheap rejection.
func (m *Mover) proposeMove(iel int) bool {
	dr := r3.Scale(m.sqrtTau, r3.Vec{
		X: m.Rng.Normal(),
		Y: m.Rng.Normal(),
		Z: m.Rng.Normal(),
	})
	m.Els.SetActive(iel)
	m.Attempts++
	return m.Els.MakeMoveAndCheck(iel, dr)
}

// decideMove applies the fixed-probability accept test. The benchmark keeps
// the constant threshold rather than the Metropolis min(1, ratio^2) rule;
// the ratio is evaluated but does not enter the decision.
func (m *Mover) decideMove() bool {
	return m.Rng.Uniform() < m.accept
}

// AdvanceElectron runs the full protocol for one electron: gradient at the
// current position, propose, cheap validity check, ratio+gradient at the
// trial position, accept test, commit or restore. The current-position
// gradient does not enter the fixed accept test but stays in the loop as a
// timed workload phase. Reports whether the move was accepted.
func (m *Mover) AdvanceElectron(iel int) (bool, error) {
	tg := m.timer(timers.EvalGrad)
	tg.Start()
	m.WF.GradCurrent(m.Els, iel)
	tg.Stop()

	if !m.proposeMove(iel) {
		return false, nil
	}

	var grad r3.Vec
	tr := m.timer(timers.RatioGrad)
	tr.Start()
	_, err := m.WF.RatioGrad(m.Els, iel, &grad)
	tr.Stop()
	if err != nil {
		// oracle failure at a trial position: the move is invalid, same
		// outcome as the cheap rejection stage
		m.WF.Restore(iel)
		m.Els.RejectMove(iel)
		return false, nil
	}

	if m.decideMove() {
		m.Els.AcceptMove(iel)
		tu := m.timer(timers.Update)
		tu.Start()
		err := m.WF.AcceptMove(m.Els, iel)
		tu.Stop()
		if err != nil {
			return false, err
		}
		m.Accepted++
		return true, nil
	}
	m.WF.Restore(iel)
	m.Els.RejectMove(iel)
	return false, nil
}

// Sweep proposes one move for every electron in index order.
func (m *Mover) Sweep() error {
	for iel := 0; iel < m.Els.N(); iel++ {
		if _, err := m.AdvanceElectron(iel); err != nil {
			return fmt.Errorf("electron %d: %w", iel, err)
		}
	}
	return nil
}

// FinishStep is the done-particle-by-particle step boundary: it ends the
// sweep and recomputes the log value, gradients and Laplacians from
// scratch, which also bounds the drift of the incremental inverse.
func (m *Mover) FinishStep() error {
	m.Els.DonePbyP()
	return m.WF.EvaluateGL(m.Els)
}

// RunStep advances the walker through one Monte Carlo step: the
// drift-and-diffusion substeps, the sweep finalize, and the pseudopotential
// pass.
func (m *Mover) RunStep(cfg Config) error {
	td := m.timer(timers.Diffusion)
	td.Start()
	for l := 0; l < cfg.Substeps; l++ {
		if err := m.Sweep(); err != nil {
			td.Stop()
			return err
		}
	}
	td.Stop()

	tv := m.timer(timers.Value)
	tv.Start()
	err := m.FinishStep()
	tv.Stop()
	if err != nil {
		return err
	}

	te := m.timer(timers.ECP)
	te.Start()
	v, err := m.evaluateNLPPPass()
	te.Stop()
	if err != nil {
		return err
	}
	m.NLPPSum += v
	return nil
}

// AcceptanceRatio returns the accumulated acceptance fraction.
func (m *Mover) AcceptanceRatio() float64 {
	if m.Attempts == 0 {
		return 0
	}
	return float64(m.Accepted) / float64(m.Attempts)
}
