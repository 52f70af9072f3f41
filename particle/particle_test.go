// particle_test.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package particle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/rng"
)

func TestApplyBoundaryWraps(t *testing.T) {
	lat := NewCubicLattice(4.0)
	for _, tc := range []struct {
		name string
		in   r3.Vec
		want r3.Vec
		ok   bool
	}{
		{"inside", r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 1, Y: 2, Z: 3}, true},
		{"above", r3.Vec{X: 5, Y: 2, Z: 3}, r3.Vec{X: 1, Y: 2, Z: 3}, true},
		{"below", r3.Vec{X: -1, Y: 2, Z: 3}, r3.Vec{X: 3, Y: 2, Z: 3}, true},
		{"far", r3.Vec{X: 9, Y: 2, Z: 3}, r3.Vec{X: 1, Y: 2, Z: 3}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := lat.ApplyBoundary(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.InDelta(t, tc.want.X, got.X, 1e-12)
			assert.InDelta(t, tc.want.Y, got.Y, 1e-12)
			assert.InDelta(t, tc.want.Z, got.Z, 1e-12)
		})
	}
}

// A component infinitesimally below zero must not wrap to the cell edge
// itself: math.Mod keeps the tiny negative value and the +edge correction
// rounds to exactly edge, which is outside the half-open cell.
func TestApplyBoundaryTinyNegativeStaysInCell(t *testing.T) {
	lat := NewCubicLattice(3.7)
	for _, in := range []r3.Vec{
		{X: -1e-18, Y: 1, Z: 1},
		{X: 1, Y: -5e-324, Z: 1},
		{X: 1, Y: 1, Z: -1e-300},
	} {
		got, ok := lat.ApplyBoundary(in)
		require.True(t, ok)
		for d, c := range [3]float64{got.X, got.Y, got.Z} {
			assert.GreaterOrEqual(t, c, 0.0, "component %d", d)
			assert.Less(t, c, lat.Edge[d], "component %d", d)
		}
	}
}

func TestMinimumImage(t *testing.T) {
	lat := NewCubicLattice(4.0)
	// particles near opposite faces are neighbors through the boundary
	d := lat.Distance(r3.Vec{X: 0.5}, r3.Vec{X: 3.5})
	assert.InDelta(t, 1.0, d, 1e-12)

	d = lat.Distance(r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{X: 2, Y: 2, Z: 2})
	assert.InDelta(t, math.Sqrt(3), d, 1e-12)
}

func TestMakeMoveAcceptReject(t *testing.T) {
	lat := NewCubicLattice(4.0)
	p := NewParticleSet(2, lat)
	p.R[0] = r3.Vec{X: 1, Y: 1, Z: 1}

	ok := p.MakeMoveAndCheck(0, r3.Vec{X: 0.5})
	require.True(t, ok)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, p.R[0], "trial move must not touch R")

	p.RejectMove(0)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, p.R[0])

	ok = p.MakeMoveAndCheck(0, r3.Vec{X: 0.5})
	require.True(t, ok)
	p.AcceptMove(0)
	assert.InDelta(t, 1.5, p.R[0].X, 1e-12)
}

func TestMakeMoveInvalid(t *testing.T) {
	lat := NewCubicLattice(2.0)
	p := NewParticleSet(1, lat)
	p.R[0] = r3.Vec{X: 1, Y: 1, Z: 1}
	ok := p.MakeMoveAndCheck(0, r3.Vec{X: 100})
	assert.False(t, ok)
	// accepting after an invalid move is a no-op
	p.AcceptMove(0)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, p.R[0])
}

func TestBuildIons(t *testing.T) {
	ions, lat := BuildIons(2, 1, 1, 3.0)
	require.Equal(t, 2, ions.N())
	assert.Equal(t, [3]float64{6, 3, 3}, lat.Edge)
	assert.Equal(t, r3.Vec{X: 1.5, Y: 1.5, Z: 1.5}, ions.R[0])
	assert.Equal(t, r3.Vec{X: 4.5, Y: 1.5, Z: 1.5}, ions.R[1])
	assert.Equal(t, 2*ElectronsPerIon, CountElectrons(ions))
}

func TestBuildElectronsDeterministic(t *testing.T) {
	_, lat := BuildIons(1, 1, 1, 3.0)
	a := BuildElectrons(4, lat, rng.NewStream(11))
	b := BuildElectrons(4, lat, rng.NewStream(11))
	require.Equal(t, a.R, b.R)
	for _, r := range a.R {
		assert.True(t, r.X >= 0 && r.X < lat.Edge[0])
	}
}

func TestDistanceTable(t *testing.T) {
	ions, lat := BuildIons(1, 1, 1, 4.0)
	els := NewParticleSet(2, lat)
	els.R[0] = r3.Vec{X: 2, Y: 2, Z: 2}
	els.R[1] = r3.Vec{X: 0, Y: 2, Z: 2}

	dt := NewDistanceTable(els.N(), ions.N())
	dt.Update(els, ions)
	require.Len(t, dt.D, 2)
	assert.InDelta(t, 0.0, dt.D[0][0], 1e-12)
	assert.InDelta(t, 2.0, dt.D[1][0], 1e-12)
}
