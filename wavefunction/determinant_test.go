// determinant_test.go --  This file is part of the miniqmc project.
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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
	"github.com/kgasperich/miniqmc/rng"
)

// testSystem builds a periodic cell, nels electrons at stream-determined
// positions, and a matching analytic orbital set.
func testSystem(t *testing.T, nels int, seed uint64) (*particle.ParticleSet, SPOSet) {
	t.Helper()
	lat := particle.NewCubicLattice(3.7)
	spo, err := NewCosineSPOSet(nels, lat, 11)
	require.NoError(t, err)
	els := particle.BuildElectrons(nels, lat, rng.NewStream(seed))
	return els, spo
}

// maxRelDiff returns max |a-b| / max(1, max |b|) over all elements.
func maxRelDiff(a, b *mat.Dense) float64 {
	ra, ca := a.Dims()
	scale := 1.0
	diff := 0.0
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			if v := math.Abs(b.At(i, j)); v > scale {
				scale = v
			}
			if d := math.Abs(a.At(i, j) - b.At(i, j)); d > diff {
				diff = d
			}
		}
	}
	return diff / scale
}

func TestOrbitalCountMismatch(t *testing.T) {
	lat := particle.NewCubicLattice(3.7)
	spo, err := NewCosineSPOSet(4, lat, 11)
	require.NoError(t, err)
	_, err = NewDiracDeterminant(spo, 6)
	assert.Error(t, err)
}

// Ratio identity: evaluateRatio followed by discard leaves matrix and
// inverse bit-identical to their pre-call state.
func TestRatioThenDiscardLeavesStateUntouched(t *testing.T) {
	els, spo := testSystem(t, 4, 13)
	det, err := NewDiracDeterminant(spo, 4)
	require.NoError(t, err)
	require.NoError(t, det.Recompute(els))

	beforeM := det.Matrix()
	beforeInv := det.Inverse()

	var grad r3.Vec
	require.True(t, els.MakeMoveAndCheck(2, r3.Vec{X: 0.3, Y: -0.2, Z: 0.1}))
	_, err = det.RatioGrad(els, 2, &grad)
	require.NoError(t, err)
	det.DiscardMove()
	els.RejectMove(2)

	assert.True(t, mat.Equal(beforeM, det.Matrix()), "matrix changed by ratio+discard")
	assert.True(t, mat.Equal(beforeInv, det.Inverse()), "inverse changed by ratio+discard")
}

// Idempotent reject: N consecutive rejections leave position and matrix
// state unchanged.
func TestRepeatedRejectIsIdempotent(t *testing.T) {
	els, spo := testSystem(t, 4, 17)
	det, err := NewDiracDeterminant(spo, 4)
	require.NoError(t, err)
	require.NoError(t, det.Recompute(els))

	beforeInv := det.Inverse()
	beforePos := els.R[1]
	stream := rng.NewStream(23)
	for k := 0; k < 8; k++ {
		dr := r3.Vec{X: stream.Normal(), Y: stream.Normal(), Z: stream.Normal()}
		if !els.MakeMoveAndCheck(1, dr) {
			continue
		}
		var grad r3.Vec
		_, err := det.RatioGrad(els, 1, &grad)
		require.NoError(t, err)
		det.DiscardMove()
		els.RejectMove(1)
	}
	assert.Equal(t, beforePos, els.R[1])
	assert.True(t, mat.Equal(beforeInv, det.Inverse()))
}

// Update correctness: after an accepted move the maintained inverse must
// match a full recompute on the post-move positions to 1e-10 relative.
func TestShermanMorrisonMatchesRecompute(t *testing.T) {
	for _, nels := range []int{2, 3, 5, 8} {
		t.Run(fmt.Sprintf("N=%d", nels), func(t *testing.T) {
			els, spo := testSystem(t, nels, 29)
			det, err := NewDiracDeterminant(spo, nels)
			require.NoError(t, err)
			require.NoError(t, det.Recompute(els))

			stream := rng.NewStream(31)
			for iel := 0; iel < nels; iel++ {
				dr := r3.Vec{X: 0.4 * stream.Normal(), Y: 0.4 * stream.Normal(), Z: 0.4 * stream.Normal()}
				if !els.MakeMoveAndCheck(iel, dr) {
					continue
				}
				var grad r3.Vec
				_, err := det.RatioGrad(els, iel, &grad)
				require.NoError(t, err)
				require.NoError(t, det.AcceptMove(els, iel))
				els.AcceptMove(iel)

				check, err := NewDiracDeterminant(spo, nels)
				require.NoError(t, err)
				require.NoError(t, check.Recompute(els))
				assert.Less(t, maxRelDiff(det.Inverse(), check.Inverse()), 1e-10,
					"inverse drift after electron %d", iel)
			}
		})
	}
}

// Determinant ratio sanity: the incremental ratio must match
// det(A')/det(A) computed by independent LU factorizations.
func TestRatioMatchesDeterminantQuotient(t *testing.T) {
	for _, nels := range []int{2, 4, 6, 8} {
		t.Run(fmt.Sprintf("N=%d", nels), func(t *testing.T) {
			els, spo := testSystem(t, nels, 37)
			det, err := NewDiracDeterminant(spo, nels)
			require.NoError(t, err)
			require.NoError(t, det.Recompute(els))

			oldM := det.Matrix()
			iel := nels / 2
			require.True(t, els.MakeMoveAndCheck(iel, r3.Vec{X: 0.25, Y: 0.15, Z: -0.35}))

			var grad r3.Vec
			ratio, err := det.RatioGrad(els, iel, &grad)
			require.NoError(t, err)

			row := make([]float64, nels)
			require.NoError(t, spo.EvaluateV(els.ActivePos(), row))
			newM := mat.DenseCopyOf(oldM)
			newM.SetRow(iel, row)
			want := mat.Det(newM) / mat.Det(oldM)
			assert.InDelta(t, want, ratio, 1e-10*math.Max(1, math.Abs(want)))

			det.DiscardMove()
			els.RejectMove(iel)
		})
	}
}

// The reference backend must agree with the incremental backend on ratios.
func TestReferenceBackendAgrees(t *testing.T) {
	els, spo := testSystem(t, 5, 41)
	fast, err := NewDiracDeterminant(spo, 5)
	require.NoError(t, err)
	ref, err := NewDiracDeterminantRef(spo, 5)
	require.NoError(t, err)
	require.NoError(t, fast.Recompute(els))
	require.NoError(t, ref.Recompute(els))

	require.True(t, els.MakeMoveAndCheck(3, r3.Vec{X: -0.2, Y: 0.3, Z: 0.25}))
	var gFast, gRef r3.Vec
	rFast, err := fast.RatioGrad(els, 3, &gFast)
	require.NoError(t, err)
	rRef, err := ref.RatioGrad(els, 3, &gRef)
	require.NoError(t, err)

	assert.InDelta(t, rRef, rFast, 1e-10*math.Max(1, math.Abs(rRef)))
	assert.InDelta(t, gRef.X, gFast.X, 1e-9)
	assert.InDelta(t, gRef.Y, gFast.Y, 1e-9)
	assert.InDelta(t, gRef.Z, gFast.Z, 1e-9)

	require.NoError(t, fast.AcceptMove(els, 3))
	require.NoError(t, ref.AcceptMove(els, 3))
	els.AcceptMove(3)
	assert.Less(t, maxRelDiff(fast.Inverse(), ref.Inverse()), 1e-10)
}

// The gradient from RatioGrad is d(log det)/dr at the trial position;
// comparison against central finite differences of log|det|.
func TestGradientMatchesFiniteDifference(t *testing.T) {
	els, spo := testSystem(t, 4, 43)
	det, err := NewDiracDeterminant(spo, 4)
	require.NoError(t, err)
	require.NoError(t, det.Recompute(els))

	const iel = 1
	dr := r3.Vec{X: 0.2, Y: -0.1, Z: 0.15}
	require.True(t, els.MakeMoveAndCheck(iel, dr))
	var grad r3.Vec
	_, err = det.RatioGrad(els, iel, &grad)
	require.NoError(t, err)
	trial := els.ActivePos()
	det.DiscardMove()
	els.RejectMove(iel)

	logDetAt := func(pos r3.Vec) float64 {
		probe := els.Clone()
		// orbitals are cell-periodic, so wrapping the probe position is exact
		wrapped, _ := probe.Lattice.ApplyBoundary(pos)
		probe.R[iel] = wrapped
		d, err := NewDiracDeterminant(spo, 4)
		require.NoError(t, err)
		require.NoError(t, d.Recompute(probe))
		ld, _ := d.LogDet()
		return ld
	}

	const h = 1e-6
	for axis, want := range []float64{grad.X, grad.Y, grad.Z} {
		shift := r3.Vec{}
		switch axis {
		case 0:
			shift.X = h
		case 1:
			shift.Y = h
		case 2:
			shift.Z = h
		}
		got := (logDetAt(r3.Add(trial, shift)) - logDetAt(r3.Sub(trial, shift))) / (2 * h)
		assert.InDelta(t, want, got, 1e-4)
	}
}

func TestAcceptWithoutRatioFails(t *testing.T) {
	els, spo := testSystem(t, 3, 47)
	det, err := NewDiracDeterminant(spo, 3)
	require.NoError(t, err)
	require.NoError(t, det.Recompute(els))
	assert.ErrorIs(t, det.AcceptMove(els, 0), ErrNoTrialMove)
}

// LogDet tracking through incremental accepts stays consistent with a full
// factorization.
func TestLogDetTracksAccepts(t *testing.T) {
	els, spo := testSystem(t, 6, 53)
	det, err := NewDiracDeterminant(spo, 6)
	require.NoError(t, err)
	require.NoError(t, det.Recompute(els))

	stream := rng.NewStream(59)
	for iel := 0; iel < 6; iel++ {
		dr := r3.Vec{X: 0.3 * stream.Normal(), Y: 0.3 * stream.Normal(), Z: 0.3 * stream.Normal()}
		if !els.MakeMoveAndCheck(iel, dr) {
			continue
		}
		var grad r3.Vec
		if _, err := det.RatioGrad(els, iel, &grad); err != nil {
			els.RejectMove(iel)
			det.DiscardMove()
			continue
		}
		require.NoError(t, det.AcceptMove(els, iel))
		els.AcceptMove(iel)
	}

	gotLog, gotSign := det.LogDet()
	check, err := NewDiracDeterminant(spo, 6)
	require.NoError(t, err)
	require.NoError(t, check.Recompute(els))
	wantLog, wantSign := check.LogDet()
	assert.InDelta(t, wantLog, gotLog, 1e-9)
	assert.Equal(t, wantSign, gotSign)
}

// A reference backend that was never recomputed holds a singular matrix.
// The row-fed ratio must report 0 with a zero gradient instead of leaking
// infinities, and a follow-up accept must fail.
func TestRefRatioGradFromRowSingularMatrix(t *testing.T) {
	els, spo := testSystem(t, 4, 61)
	det, err := NewDiracDeterminantRef(spo, 4)
	require.NoError(t, err)

	vals := make([]float64, 4)
	grads := make([]r3.Vec, 4)
	laps := make([]float64, 4)
	require.NoError(t, spo.EvaluateVGL(els.R[1], vals, grads, laps))

	var grad r3.Vec
	ratio := det.RatioGradFromRow(1, vals, grads, laps, &grad)
	assert.Equal(t, 0.0, ratio)
	for _, c := range [3]float64{grad.X, grad.Y, grad.Z} {
		assert.False(t, math.IsInf(c, 0) || math.IsNaN(c), "gradient component %v", c)
	}
	assert.ErrorIs(t, det.AcceptMove(els, 1), ErrNoTrialMove)
}
