// jastrow.go --  This file is part of the miniqmc project.
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

// Jastrow is an additive log-wavefunction correlation factor with its own
// gradient and Laplacian. The move engine multiplies its ratio into the
// determinant ratio and adds its gradient to the trial gradient.
type Jastrow interface {
	// EvaluateLog returns the log contribution for the whole configuration.
	EvaluateLog(els *particle.ParticleSet) float64

	// RatioGrad returns exp(logJ_new - logJ_old) for the active electron's
	// trial position and adds the trial-position gradient into grad.
	RatioGrad(els *particle.ParticleSet, iel int, grad *r3.Vec) float64

	// Ratio is the value-only form.
	Ratio(els *particle.ParticleSet, iel int) float64

	// GradCurrent returns the log-Jastrow gradient for electron iel at its
	// committed position.
	GradCurrent(els *particle.ParticleSet, iel int) r3.Vec

	// AcceptMove commits any per-move caches for electron iel.
	AcceptMove(els *particle.ParticleSet, iel int)

	// EvaluateGL adds gradient and Laplacian contributions into els.G and
	// els.Lap for every electron.
	EvaluateGL(els *particle.ParticleSet)
}

// GaussianJastrow is a one-body factor binding electrons to ions:
// log J = sum_{e,I} -A exp(-|r_eI|^2 / (2 w^2)) with minimum-image
// displacements. Smooth everywhere, so gradients and Laplacians are exact.
type GaussianJastrow struct {
	Ions  *particle.ParticleSet
	A     float64
	Width float64
}

// NewGaussianJastrow builds the factor with amplitude a and width w.
func NewGaussianJastrow(ions *particle.ParticleSet, a, w float64) *GaussianJastrow {
	return &GaussianJastrow{Ions: ions, A: a, Width: w}
}

// u is the pair term; du and d2u its radial derivatives combined into
// gradient and Laplacian at the call sites.
func (j *GaussianJastrow) u(s float64) float64 {
	return -j.A * math.Exp(-s/(2*j.Width*j.Width))
}

func (j *GaussianJastrow) logOne(pos r3.Vec, lat *particle.Lattice) float64 {
	sum := 0.0
	for _, ion := range j.Ions.R {
		d := lat.MinimumImage(pos, ion)
		sum += j.u(r3.Norm2(d))
	}
	return sum
}

func (j *GaussianJastrow) EvaluateLog(els *particle.ParticleSet) float64 {
	sum := 0.0
	for _, r := range els.R {
		sum += j.logOne(r, els.Lattice)
	}
	return sum
}

func (j *GaussianJastrow) RatioGrad(els *particle.ParticleSet, iel int, grad *r3.Vec) float64 {
	lat := els.Lattice
	newPos := els.ActivePos()
	logNew := j.logOne(newPos, lat)
	logOld := j.logOne(els.R[iel], lat)

	w2 := j.Width * j.Width
	var g r3.Vec
	for _, ion := range j.Ions.R {
		d := lat.MinimumImage(newPos, ion)
		e := math.Exp(-r3.Norm2(d) / (2 * w2))
		// grad u = (A/w^2) e d
		g = r3.Add(g, r3.Scale(j.A*e/w2, d))
	}
	*grad = r3.Add(*grad, g)
	return math.Exp(logNew - logOld)
}

func (j *GaussianJastrow) Ratio(els *particle.ParticleSet, iel int) float64 {
	lat := els.Lattice
	return math.Exp(j.logOne(els.ActivePos(), lat) - j.logOne(els.R[iel], lat))
}

func (j *GaussianJastrow) GradCurrent(els *particle.ParticleSet, iel int) r3.Vec {
	lat := els.Lattice
	w2 := j.Width * j.Width
	var g r3.Vec
	for _, ion := range j.Ions.R {
		d := lat.MinimumImage(els.R[iel], ion)
		e := math.Exp(-r3.Norm2(d) / (2 * w2))
		g = r3.Add(g, r3.Scale(j.A*e/w2, d))
	}
	return g
}

func (j *GaussianJastrow) AcceptMove(els *particle.ParticleSet, iel int) {
	// stateless between moves; positions carry everything
}

func (j *GaussianJastrow) EvaluateGL(els *particle.ParticleSet) {
	lat := els.Lattice
	w2 := j.Width * j.Width
	for i, r := range els.R {
		var g r3.Vec
		lap := 0.0
		for _, ion := range j.Ions.R {
			d := lat.MinimumImage(r, ion)
			s := r3.Norm2(d)
			e := math.Exp(-s / (2 * w2))
			g = r3.Add(g, r3.Scale(j.A*e/w2, d))
			// lap u = (A/w^2) e (3 - s/w^2)
			lap += j.A * e / w2 * (3 - s/w2)
		}
		els.G[i] = r3.Add(els.G[i], g)
		els.Lap[i] += lap
	}
}
