// determinant_ref.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package wavefunction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
)

// DiracDeterminantRef is the reference backend: same contract as
// DiracDeterminant but every accepted move triggers a full LU
// refactorization instead of a rank-one update. O(N^3) per accept; used by
// cmd/checkdet and the correctness tests to bound the incremental backend's
// accumulated error.
type DiracDeterminantRef struct {
	inner *DiracDeterminant
}

// NewDiracDeterminantRef builds the reference backend.
func NewDiracDeterminantRef(spo SPOSet, nels int) (*DiracDeterminantRef, error) {
	inner, err := NewDiracDeterminant(spo, nels)
	if err != nil {
		return nil, err
	}
	return &DiracDeterminantRef{inner: inner}, nil
}

func (d *DiracDeterminantRef) N() int { return d.inner.n }

func (d *DiracDeterminantRef) Recompute(els *particle.ParticleSet) error {
	return d.inner.Recompute(els)
}

// RatioGrad computes the ratio independently of the maintained inverse: it
// replaces the candidate row in a copy of the matrix and compares
// determinants via two full factorizations.
func (d *DiracDeterminantRef) RatioGrad(els *particle.ParticleSet, iel int, grad *r3.Vec) (float64, error) {
	in := d.inner
	if err := in.spo.EvaluateVGL(els.ActivePos(), in.psiV, in.gradV, in.lapV); err != nil {
		return 0, err
	}
	ratio, err := d.detRatio(iel)
	if err != nil {
		return 0, err
	}

	mat.Col(in.colScratch, iel, in.psiMinv)
	var g r3.Vec
	for j := 0; j < in.n; j++ {
		g = r3.Add(g, r3.Scale(in.colScratch[j], in.gradV[j]))
	}
	*grad = r3.Scale(1/ratio, g)

	in.curRatio = ratio
	in.curEl = iel
	in.haveTrial = true
	in.haveVGL = true
	return ratio, nil
}

func (d *DiracDeterminantRef) RatioGradFromRow(iel int, vals []float64, grads []r3.Vec, laps []float64, grad *r3.Vec) float64 {
	in := d.inner
	copy(in.psiV, vals)
	copy(in.gradV, grads)
	copy(in.lapV, laps)
	ratio, err := d.detRatio(iel)
	if err != nil {
		// a singular factorization yields no usable ratio; report 0 and
		// leave no trial state so a stray AcceptMove fails cleanly
		*grad = r3.Vec{}
		in.curRatio = 0
		in.curEl = iel
		in.haveTrial = false
		in.haveVGL = false
		return 0
	}

	mat.Col(in.colScratch, iel, in.psiMinv)
	var g r3.Vec
	for j := 0; j < in.n; j++ {
		g = r3.Add(g, r3.Scale(in.colScratch[j], in.gradV[j]))
	}
	*grad = r3.Scale(1/ratio, g)

	in.curRatio = ratio
	in.curEl = iel
	in.haveTrial = true
	in.haveVGL = true
	return ratio
}

func (d *DiracDeterminantRef) Ratio(els *particle.ParticleSet, iel int) (float64, error) {
	in := d.inner
	if err := in.spo.EvaluateV(els.ActivePos(), in.psiV); err != nil {
		return 0, err
	}
	ratio, err := d.detRatio(iel)
	if err != nil {
		return 0, err
	}
	in.curRatio = ratio
	in.curEl = iel
	in.haveTrial = true
	in.haveVGL = false
	return ratio, nil
}

// detRatio evaluates det(A')/det(A) by brute force, with A' a copy of the
// matrix whose row iel is the scratch candidate row.
func (d *DiracDeterminantRef) detRatio(iel int) (float64, error) {
	in := d.inner
	var luOld, luNew mat.LU
	luOld.Factorize(in.psiM)

	trial := mat.DenseCopyOf(in.psiM)
	trial.SetRow(iel, in.psiV)
	luNew.Factorize(trial)

	logOld, signOld := luOld.LogDet()
	logNew, signNew := luNew.LogDet()
	if signOld == 0 {
		return 0, fmt.Errorf("wavefunction: reference determinant is singular")
	}
	return signNew * signOld * math.Exp(logNew-logOld), nil
}

// AcceptMove replaces the row and refactorizes from the post-move positions.
func (d *DiracDeterminantRef) AcceptMove(els *particle.ParticleSet, iel int) error {
	in := d.inner
	if !in.haveTrial || in.curEl != iel {
		return fmt.Errorf("%w: electron %d", ErrNoTrialMove, iel)
	}
	in.psiM.SetRow(iel, in.psiV)
	if in.haveVGL {
		copy(in.gradM[iel], in.gradV)
		copy(in.lapM[iel], in.lapV)
	}

	var lu mat.LU
	lu.Factorize(in.psiM)
	logDet, sign := lu.LogDet()
	if sign == 0 {
		return fmt.Errorf("wavefunction: singular Slater matrix after accept")
	}
	if err := lu.SolveTo(in.psiMinv, false, identity(in.n)); err != nil {
		return fmt.Errorf("wavefunction: reference inverse: %w", err)
	}
	in.logDet = logDet
	in.detSign = sign
	in.haveTrial = false
	return nil
}

func (d *DiracDeterminantRef) GradCurrent(iel int) r3.Vec { return d.inner.GradCurrent(iel) }

func (d *DiracDeterminantRef) DiscardMove() { d.inner.DiscardMove() }

func (d *DiracDeterminantRef) EvaluateGL(els *particle.ParticleSet, fromScratch bool) error {
	return d.inner.EvaluateGL(els, fromScratch)
}

func (d *DiracDeterminantRef) LogDet() (float64, float64) { return d.inner.LogDet() }

func (d *DiracDeterminantRef) Matrix() *mat.Dense { return d.inner.Matrix() }

func (d *DiracDeterminantRef) Inverse() *mat.Dense { return d.inner.Inverse() }
