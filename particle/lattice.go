// lattice.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------

// Package particle holds particle configurations, the periodic simulation
// cell, and electron-ion distance tables.
package particle

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Lattice is an orthorhombic periodic simulation cell with edges Edge[d]
// along the three Cartesian axes.
type Lattice struct {
	Edge [3]float64
}

// NewCubicLattice builds a cell with the given edge replicated on all axes.
func NewCubicLattice(a float64) *Lattice {
	return &Lattice{Edge: [3]float64{a, a, a}}
}

// ApplyBoundary wraps pos into the primary cell. The position is judged
// invalid when any component lies more than one full cell image outside the
// box; a single-particle move can never legitimately jump that far.
func (lat *Lattice) ApplyBoundary(pos r3.Vec) (r3.Vec, bool) {
	comps := [3]float64{pos.X, pos.Y, pos.Z}
	ok := true
	for d := 0; d < 3; d++ {
		e := lat.Edge[d]
		if comps[d] < -e || comps[d] >= 2*e {
			ok = false
		}
		comps[d] = math.Mod(comps[d], e)
		if comps[d] < 0 {
			comps[d] += e
		}
		// a tiny negative component wraps to exactly e after the add;
		// fold it back so the result stays inside [0, e)
		if comps[d] >= e {
			comps[d] = 0
		}
	}
	return r3.Vec{X: comps[0], Y: comps[1], Z: comps[2]}, ok
}

// MinimumImage returns the minimum-image displacement a-b.
func (lat *Lattice) MinimumImage(a, b r3.Vec) r3.Vec {
	d := r3.Sub(a, b)
	comps := [3]float64{d.X, d.Y, d.Z}
	for i := 0; i < 3; i++ {
		e := lat.Edge[i]
		comps[i] -= e * math.Round(comps[i]/e)
	}
	return r3.Vec{X: comps[0], Y: comps[1], Z: comps[2]}
}

// Distance returns the minimum-image distance between a and b.
func (lat *Lattice) Distance(a, b r3.Vec) float64 {
	return r3.Norm(lat.MinimumImage(a, b))
}

// Volume returns the cell volume.
func (lat *Lattice) Volume() float64 {
	return lat.Edge[0] * lat.Edge[1] * lat.Edge[2]
}
