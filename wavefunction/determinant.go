// determinant.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package wavefunction

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
)

// ErrNoTrialMove reports a commit without a preceding ratio evaluation for
// the same electron.
var ErrNoTrialMove = errors.New("wavefunction: no pending trial move")

// MatrixBackend maintains the N x N Slater matrix and grants the move engine
// determinant ratios, gradients and committed updates. The move engine and
// the drivers depend only on this interface; whether updates are incremental
// or recomputed from scratch is the backend's business.
//
// Within one walker the calls for an electron are strictly sequenced:
// RatioGrad (or Ratio) for electron i, then AcceptMove(i) or DiscardMove(),
// before any other electron's evaluation touches the inverse.
type MatrixBackend interface {
	// N returns the matrix dimension.
	N() int

	// Recompute rebuilds the matrix from all current positions and inverts
	// it by direct factorization. O(N^3).
	Recompute(els *particle.ParticleSet) error

	// RatioGrad evaluates the determinant ratio and the log-determinant
	// gradient at the active electron's trial position. Stores the candidate
	// row in scratch; does not mutate the matrix or inverse.
	RatioGrad(els *particle.ParticleSet, iel int, grad *r3.Vec) (float64, error)

	// RatioGradFromRow is RatioGrad with the oracle outputs supplied by the
	// caller, for drivers that evaluate orbitals in one batched call. Must
	// produce exactly what RatioGrad produces for the same row.
	RatioGradFromRow(iel int, vals []float64, grads []r3.Vec, laps []float64, grad *r3.Vec) float64

	// Ratio is the value-only form used by the non-local pseudopotential
	// quadrature; the result is never committed.
	Ratio(els *particle.ParticleSet, iel int) (float64, error)

	// GradCurrent returns the log-determinant gradient for electron iel at
	// its committed position, from state already in hand. No oracle calls,
	// no scratch-row mutation visible to the move sequence.
	GradCurrent(iel int) r3.Vec

	// AcceptMove commits the pending trial row for electron iel.
	AcceptMove(els *particle.ParticleSet, iel int) error

	// DiscardMove invalidates the scratch row; matrix and inverse untouched.
	DiscardMove()

	// EvaluateGL accumulates grad and laplacian of the log determinant into
	// the per-electron caches of els. With fromScratch it refactorizes first.
	EvaluateGL(els *particle.ParticleSet, fromScratch bool) error

	// LogDet returns log|det A| and the sign of det A as of the last commit.
	LogDet() (float64, float64)

	// Matrix and Inverse return copies of the current state, for
	// correctness checks only.
	Matrix() *mat.Dense
	Inverse() *mat.Dense
}

// DiracDeterminant is the production backend: it owns the Slater matrix and
// its true inverse, evaluates ratios against the stored inverse column, and
// commits accepted moves with a rank-one Sherman-Morrison row update in
// O(N^2) instead of refactorizing.
type DiracDeterminant struct {
	n   int
	spo SPOSet

	psiM    *mat.Dense // row i = orbital values at electron i
	psiMinv *mat.Dense // true inverse of psiM as of the last commit
	gradM   [][]r3.Vec // orbital gradients, row per electron
	lapM    [][]float64

	// trial-row scratch, valid only between RatioGrad and Accept/Discard
	psiV      []float64
	gradV     []r3.Vec
	lapV      []float64
	curRatio  float64
	curEl     int
	haveTrial bool
	haveVGL   bool

	colScratch []float64
	logDet     float64
	detSign    float64
}

// NewDiracDeterminant builds the backend for nels electrons. The SPO set
// must provide exactly nels orbitals; anything else is a setup error.
func NewDiracDeterminant(spo SPOSet, nels int) (*DiracDeterminant, error) {
	if spo.NumOrbitals() != nels {
		return nil, fmt.Errorf("wavefunction: %d electrons need %d orbitals, oracle has %d",
			nels, nels, spo.NumOrbitals())
	}
	d := &DiracDeterminant{
		n:          nels,
		spo:        spo,
		psiM:       mat.NewDense(nels, nels, nil),
		psiMinv:    mat.NewDense(nels, nels, nil),
		gradM:      make([][]r3.Vec, nels),
		lapM:       make([][]float64, nels),
		psiV:       make([]float64, nels),
		gradV:      make([]r3.Vec, nels),
		lapV:       make([]float64, nels),
		colScratch: make([]float64, nels),
		curEl:      -1,
	}
	for i := 0; i < nels; i++ {
		d.gradM[i] = make([]r3.Vec, nels)
		d.lapM[i] = make([]float64, nels)
	}
	return d, nil
}

func (d *DiracDeterminant) N() int { return d.n }

func (d *DiracDeterminant) Recompute(els *particle.ParticleSet) error {
	if els.N() != d.n {
		return fmt.Errorf("wavefunction: particle set has %d electrons, matrix is %dx%d",
			els.N(), d.n, d.n)
	}
	row := make([]float64, d.n)
	for i := 0; i < d.n; i++ {
		if err := d.spo.EvaluateVGL(els.R[i], row, d.gradM[i], d.lapM[i]); err != nil {
			return fmt.Errorf("wavefunction: recompute row %d: %w", i, err)
		}
		d.psiM.SetRow(i, row)
	}

	var lu mat.LU
	lu.Factorize(d.psiM)
	logDet, sign := lu.LogDet()
	if math.IsInf(logDet, -1) || sign == 0 {
		return errors.New("wavefunction: singular Slater matrix")
	}
	if err := lu.SolveTo(d.psiMinv, false, identity(d.n)); err != nil {
		return fmt.Errorf("wavefunction: inverting Slater matrix: %w", err)
	}
	d.logDet = logDet
	d.detSign = sign
	d.haveTrial = false
	return nil
}

// RatioGrad implements the determinant ratio identity: with candidate row c
// for electron i, det(A')/det(A) = c . Ainv[:,i]. The gradient of log det at
// the trial position combines the candidate orbital gradients with the same
// inverse column.
func (d *DiracDeterminant) RatioGrad(els *particle.ParticleSet, iel int, grad *r3.Vec) (float64, error) {
	if err := d.spo.EvaluateVGL(els.ActivePos(), d.psiV, d.gradV, d.lapV); err != nil {
		return 0, err
	}
	return d.ratioGradScratch(iel, grad), nil
}

func (d *DiracDeterminant) RatioGradFromRow(iel int, vals []float64, grads []r3.Vec, laps []float64, grad *r3.Vec) float64 {
	copy(d.psiV, vals)
	copy(d.gradV, grads)
	copy(d.lapV, laps)
	return d.ratioGradScratch(iel, grad)
}

// ratioGradScratch computes ratio and gradient from the scratch row already
// in place.
func (d *DiracDeterminant) ratioGradScratch(iel int, grad *r3.Vec) float64 {
	mat.Col(d.colScratch, iel, d.psiMinv)
	ratio := floats.Dot(d.psiV, d.colScratch)

	var g r3.Vec
	for j := 0; j < d.n; j++ {
		g = r3.Add(g, r3.Scale(d.colScratch[j], d.gradV[j]))
	}
	*grad = r3.Scale(1/ratio, g)

	d.curRatio = ratio
	d.curEl = iel
	d.haveTrial = true
	d.haveVGL = true
	return ratio
}

func (d *DiracDeterminant) Ratio(els *particle.ParticleSet, iel int) (float64, error) {
	if err := d.spo.EvaluateV(els.ActivePos(), d.psiV); err != nil {
		return 0, err
	}
	mat.Col(d.colScratch, iel, d.psiMinv)
	ratio := floats.Dot(d.psiV, d.colScratch)
	d.curRatio = ratio
	d.curEl = iel
	d.haveTrial = true
	d.haveVGL = false
	return ratio, nil
}

// AcceptMove applies the Sherman-Morrison rank-one update for the replaced
// row: with u the pivot column Ainv[:,iel] and w_j = c . Ainv[:,j],
//
//	Ainv[:,j] -= (w_j / ratio) * u   for j != iel
//	Ainv[:,iel] = u / ratio
//
// then replaces the stored matrix row. O(N^2).
// GradCurrent combines the committed orbital gradients of row iel with the
// matching inverse column. The ratio at the current position is 1, so no
// division is needed.
func (d *DiracDeterminant) GradCurrent(iel int) r3.Vec {
	mat.Col(d.colScratch, iel, d.psiMinv)
	var g r3.Vec
	for j := 0; j < d.n; j++ {
		g = r3.Add(g, r3.Scale(d.colScratch[j], d.gradM[iel][j]))
	}
	return g
}

func (d *DiracDeterminant) AcceptMove(els *particle.ParticleSet, iel int) error {
	if !d.haveTrial || d.curEl != iel {
		return fmt.Errorf("%w: electron %d", ErrNoTrialMove, iel)
	}

	n := d.n
	w := make([]float64, n)
	wv := mat.NewVecDense(n, w)
	wv.MulVec(d.psiMinv.T(), mat.NewVecDense(n, d.psiV))

	u := mat.Col(nil, iel, d.psiMinv)
	cinv := 1.0 / d.curRatio
	for j := 0; j < n; j++ {
		if j == iel {
			continue
		}
		f := w[j] * cinv
		for i := 0; i < n; i++ {
			d.psiMinv.Set(i, j, d.psiMinv.At(i, j)-f*u[i])
		}
	}
	for i := 0; i < n; i++ {
		d.psiMinv.Set(i, iel, u[i]*cinv)
	}

	d.psiM.SetRow(iel, d.psiV)
	if d.haveVGL {
		copy(d.gradM[iel], d.gradV)
		copy(d.lapM[iel], d.lapV)
	}
	d.logDet += math.Log(math.Abs(d.curRatio))
	if d.curRatio < 0 {
		d.detSign = -d.detSign
	}
	d.haveTrial = false
	return nil
}

func (d *DiracDeterminant) DiscardMove() {
	d.haveTrial = false
}

func (d *DiracDeterminant) EvaluateGL(els *particle.ParticleSet, fromScratch bool) error {
	if fromScratch {
		if err := d.Recompute(els); err != nil {
			return err
		}
	}
	for i := 0; i < d.n; i++ {
		mat.Col(d.colScratch, i, d.psiMinv)
		var g r3.Vec
		lap := 0.0
		for j := 0; j < d.n; j++ {
			g = r3.Add(g, r3.Scale(d.colScratch[j], d.gradM[i][j]))
			lap += d.colScratch[j] * d.lapM[i][j]
		}
		// d^2 log det = lap(det)/det - |grad(det)/det|^2
		els.G[i] = r3.Add(els.G[i], g)
		els.Lap[i] += lap - r3.Norm2(g)
	}
	return nil
}

func (d *DiracDeterminant) LogDet() (float64, float64) { return d.logDet, d.detSign }

func (d *DiracDeterminant) Matrix() *mat.Dense { return mat.DenseCopyOf(d.psiM) }

func (d *DiracDeterminant) Inverse() *mat.Dense { return mat.DenseCopyOf(d.psiMinv) }

func identity(n int) *mat.Dense {
	id := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		id.Set(i, i, 1)
	}
	return id
}
