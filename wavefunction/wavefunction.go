// wavefunction.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package wavefunction

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
)

// WaveFunction composes one Slater-determinant backend with any number of
// Jastrow factors. Each walker owns one WaveFunction exclusively.
type WaveFunction struct {
	Det      MatrixBackend
	Jastrows []Jastrow

	LogValue  float64
	firstTime bool
}

// New assembles a wavefunction around a determinant backend.
func New(det MatrixBackend, jastrows ...Jastrow) *WaveFunction {
	return &WaveFunction{Det: det, Jastrows: jastrows, firstTime: true}
}

// EvaluateLog computes log |psi| from scratch and fills the per-electron
// gradient and Laplacian caches. Called once at walker initialization.
func (wf *WaveFunction) EvaluateLog(els *particle.ParticleSet) error {
	if !wf.firstTime {
		return nil
	}
	if err := wf.evaluateGL(els); err != nil {
		return err
	}
	wf.firstTime = false
	return nil
}

// RatioGrad returns the wavefunction ratio at the active electron's trial
// position along with the log-psi gradient there.
func (wf *WaveFunction) RatioGrad(els *particle.ParticleSet, iel int, grad *r3.Vec) (float64, error) {
	*grad = r3.Vec{}
	ratio, err := wf.Det.RatioGrad(els, iel, grad)
	if err != nil {
		return 0, err
	}
	for _, j := range wf.Jastrows {
		ratio *= j.RatioGrad(els, iel, grad)
	}
	return ratio, nil
}

// RatioGradFromRow is RatioGrad with the determinant's oracle outputs
// supplied by a batched caller. Jastrow factors are evaluated in place; they
// are scalar black boxes with no batched form.
func (wf *WaveFunction) RatioGradFromRow(els *particle.ParticleSet, iel int, vals []float64, grads []r3.Vec, laps []float64, grad *r3.Vec) float64 {
	*grad = r3.Vec{}
	ratio := wf.Det.RatioGradFromRow(iel, vals, grads, laps, grad)
	for _, j := range wf.Jastrows {
		ratio *= j.RatioGrad(els, iel, grad)
	}
	return ratio
}

// GradCurrent returns the log-psi gradient for electron iel at its committed
// position. Evaluated from state already in hand before a move is proposed;
// consumes no random numbers and does not disturb any pending move state.
func (wf *WaveFunction) GradCurrent(els *particle.ParticleSet, iel int) r3.Vec {
	g := wf.Det.GradCurrent(iel)
	for _, j := range wf.Jastrows {
		g = r3.Add(g, j.GradCurrent(els, iel))
	}
	return g
}

// Ratio is the value-only form used by the pseudopotential quadrature.
func (wf *WaveFunction) Ratio(els *particle.ParticleSet, iel int) (float64, error) {
	ratio, err := wf.Det.Ratio(els, iel)
	if err != nil {
		return 0, err
	}
	for _, j := range wf.Jastrows {
		ratio *= j.Ratio(els, iel)
	}
	return ratio, nil
}

// AcceptMove commits the pending trial move of electron iel in every
// component. Must follow the RatioGrad call for the same electron.
func (wf *WaveFunction) AcceptMove(els *particle.ParticleSet, iel int) error {
	if err := wf.Det.AcceptMove(els, iel); err != nil {
		return err
	}
	for _, j := range wf.Jastrows {
		j.AcceptMove(els, iel)
	}
	return nil
}

// Restore discards the pending trial move (rejection path).
func (wf *WaveFunction) Restore(iel int) {
	wf.Det.DiscardMove()
}

// EvaluateGL is the sweep finalize: a full recompute of log |psi| and the
// per-electron gradient/Laplacian caches, bounding the drift of the
// incremental inverse updates.
func (wf *WaveFunction) EvaluateGL(els *particle.ParticleSet) error {
	return wf.evaluateGL(els)
}

func (wf *WaveFunction) evaluateGL(els *particle.ParticleSet) error {
	for i := range els.G {
		els.G[i] = r3.Vec{}
		els.Lap[i] = 0
	}
	if err := wf.Det.EvaluateGL(els, true); err != nil {
		return err
	}
	logDet, _ := wf.Det.LogDet()
	wf.LogValue = logDet
	for _, j := range wf.Jastrows {
		j.EvaluateGL(els)
		wf.LogValue += j.EvaluateLog(els)
	}
	return nil
}

// KineticSum returns -1/2 sum_i (lap_i + |g_i|^2), an energy-like scalar the
// drivers report for sanity tracking.
func KineticSum(els *particle.ParticleSet) float64 {
	sum := 0.0
	for i := range els.Lap {
		sum += els.Lap[i] + r3.Norm2(els.G[i])
	}
	if math.IsNaN(sum) {
		return 0
	}
	return -0.5 * sum
}
