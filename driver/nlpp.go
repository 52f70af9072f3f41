// nlpp.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package driver

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
	"github.com/kgasperich/miniqmc/rng"
)

// EiPair is one electron-ion pair inside the pseudopotential cutoff.
type EiPair struct {
	El  int
	Ion int
}

// NonLocalPP evaluates the non-local pseudopotential correction: for every
// electron-ion pair within Rmax it probes the wavefunction ratio on a
// spherical quadrature around the ion. The probed moves are never committed.
type NonLocalPP struct {
	Rmax  float64
	knots []r3.Vec
}

// NewNonLocalPP builds the quadrature with the twelve icosahedral knots on
// the unit sphere.
func NewNonLocalPP(rmax float64) *NonLocalPP {
	phi := (1 + math.Sqrt(5)) / 2
	s := 1 / math.Sqrt(1+phi*phi)
	a, b := s, phi*s
	return &NonLocalPP{
		Rmax: rmax,
		knots: []r3.Vec{
			{Y: a, Z: b}, {Y: a, Z: -b}, {Y: -a, Z: b}, {Y: -a, Z: -b},
			{X: b, Y: a}, {X: -b, Y: a}, {X: b, Y: -a}, {X: -b, Y: -a},
			{X: a, Z: b}, {X: a, Z: -b}, {X: -a, Z: b}, {X: -a, Z: -b},
		},
	}
}

// Size returns the number of quadrature knots.
func (pp *NonLocalPP) Size() int { return len(pp.knots) }

// Randomize returns the knot set under a random rotation drawn from the
// walker's stream. One orientation is shared by all pairs of one pass.
func (pp *NonLocalPP) Randomize(stream *rng.Stream) []r3.Vec {
	axis := r3.Vec{X: stream.Normal(), Y: stream.Normal(), Z: stream.Normal()}
	n := r3.Norm(axis)
	if n == 0 {
		axis = r3.Vec{Z: 1}
	} else {
		axis = r3.Scale(1/n, axis)
	}
	alpha := 2 * math.Pi * stream.Uniform()
	rot := r3.NewRotation(alpha, axis)

	out := make([]r3.Vec, len(pp.knots))
	for i, k := range pp.knots {
		out[i] = rot.Rotate(k)
	}
	return out
}

// BuildPairList recomputes the electron-ion distance table and returns all
// pairs within Rmax, ordered by electron then ion index. The list is
// consumed by one quadrature pass and not retained.
func (pp *NonLocalPP) BuildPairList(els, ions *particle.ParticleSet, dt *particle.DistanceTable) []EiPair {
	dt.Update(els, ions)
	var pairs []EiPair
	for iel := range dt.D {
		for iat, d := range dt.D[iel] {
			if d < pp.Rmax {
				pairs = append(pairs, EiPair{El: iel, Ion: iat})
			}
		}
	}
	slices.SortFunc(pairs, func(a, b EiPair) int {
		if a.El != b.El {
			return a.El - b.El
		}
		return a.Ion - b.Ion
	})
	return pairs
}

// evalPair probes one pair: for each knot, a trial position on the sphere of
// the current electron-ion distance around the ion, a value-only ratio, and
// an unconditional discard. Returns the knot-averaged ratio sum.
func (m *Mover) evalPair(p EiPair, knots []r3.Vec, r float64, ionPos r3.Vec) (float64, error) {
	sum := 0.0
	weight := 1 / float64(len(knots))
	for _, k := range knots {
		target := r3.Add(ionPos, r3.Scale(r, k))
		dr := m.Els.Lattice.MinimumImage(target, m.Els.R[p.El])
		if !m.Els.MakeMoveAndCheck(p.El, dr) {
			continue
		}
		ratio, err := m.WF.Ratio(m.Els, p.El)
		if err != nil {
			m.Els.RejectMove(p.El)
			return 0, err
		}
		sum += weight * ratio
		m.WF.Restore(p.El)
		m.Els.RejectMove(p.El)
	}
	return sum, nil
}

// EvaluateNLPP runs one full sequential pass for this walker with the given
// sphere orientation and pair list, accumulating the energy-like sum.
// Positions, matrix and inverse are bit-identical before and after.
func (m *Mover) EvaluateNLPP(knots []r3.Vec, pairs []EiPair) (float64, error) {
	sum := 0.0
	for _, p := range pairs {
		r := m.dt.D[p.El][p.Ion]
		v, err := m.evalPair(p, knots, r, m.Ions.R[p.Ion])
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum, nil
}

// evaluateNLPPPass is the per-step entry: one random orientation per walker,
// fresh pair list, sequential pass.
func (m *Mover) evaluateNLPPPass() (float64, error) {
	knots := m.NLPP.Randomize(m.Rng)
	pairs := m.NLPP.BuildPairList(m.Els, m.Ions, m.dt)
	return m.EvaluateNLPP(knots, pairs)
}
