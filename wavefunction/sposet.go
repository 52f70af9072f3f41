// sposet.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------

// Package wavefunction evaluates the many-body trial wavefunction: a Slater
// determinant of single-particle orbitals, maintained through an
// incrementally updated inverse, optionally multiplied by Jastrow
// correlation factors.
package wavefunction

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/particle"
	"github.com/kgasperich/miniqmc/rng"
)

// ErrOutsideSupport reports a position outside the orbital support region.
// Callers treat it as an invalid move, never as a fault.
var ErrOutsideSupport = errors.New("wavefunction: position outside orbital support")

// SPOSet evaluates N single-particle orbitals at a position. Implementations
// are immutable after construction and freely shared across walkers.
//
// The batched form must be numerically identical to calling the scalar form
// once per position.
type SPOSet interface {
	// NumOrbitals returns N.
	NumOrbitals() int

	// EvaluateV fills vals[j] with orbital j's value at pos.
	EvaluateV(pos r3.Vec, vals []float64) error

	// EvaluateVGL fills values, gradients and Laplacians of all orbitals.
	EvaluateVGL(pos r3.Vec, vals []float64, grads []r3.Vec, laps []float64) error

	// EvaluateBatchVGL evaluates at pos[b] into vals[b], grads[b], laps[b].
	EvaluateBatchVGL(pos []r3.Vec, vals [][]float64, grads [][]r3.Vec, laps [][]float64) error
}

// CosineSPOSet is the built-in analytic orbital set standing in for the
// spline-based oracle: orbital j is cos(k_j . r + theta_j) with wavevectors
// commensurate with the periodic cell. Values, gradients and Laplacians are
// exact, which keeps the determinant machinery honest without carrying
// spline tables.
type CosineSPOSet struct {
	norb   int
	k      []r3.Vec
	theta  []float64
	kk     []float64 // |k_j|^2
	bounds [3]float64
}

// NewCosineSPOSet builds norb distinct orbitals on the given cell. The
// wavevector integers and phases are drawn from a stream seeded with seed,
// so a seed fully determines the oracle.
func NewCosineSPOSet(norb int, lat *particle.Lattice, seed uint64) (*CosineSPOSet, error) {
	if norb < 1 {
		return nil, fmt.Errorf("wavefunction: need at least one orbital, got %d", norb)
	}
	const maxWave = 3 // integer wavevector components in [-maxWave, maxWave]
	span := 2*maxWave + 1
	if norb > span*span*span {
		return nil, fmt.Errorf("wavefunction: %d orbitals exceed the available wavevectors", norb)
	}

	stream := rng.NewStream(seed)
	s := &CosineSPOSet{
		norb:   norb,
		k:      make([]r3.Vec, 0, norb),
		theta:  make([]float64, 0, norb),
		kk:     make([]float64, 0, norb),
		bounds: lat.Edge,
	}
	seen := make(map[[3]int]bool)
	for len(s.k) < norb {
		n := [3]int{
			int(stream.Uniform()*float64(span)) - maxWave,
			int(stream.Uniform()*float64(span)) - maxWave,
			int(stream.Uniform()*float64(span)) - maxWave,
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		k := r3.Vec{
			X: 2 * math.Pi * float64(n[0]) / lat.Edge[0],
			Y: 2 * math.Pi * float64(n[1]) / lat.Edge[1],
			Z: 2 * math.Pi * float64(n[2]) / lat.Edge[2],
		}
		s.k = append(s.k, k)
		s.theta = append(s.theta, 2*math.Pi*stream.Uniform())
		s.kk = append(s.kk, r3.Norm2(k))
	}
	return s, nil
}

func (s *CosineSPOSet) NumOrbitals() int { return s.norb }

func (s *CosineSPOSet) checkSupport(pos r3.Vec) error {
	comps := [3]float64{pos.X, pos.Y, pos.Z}
	for d := 0; d < 3; d++ {
		if comps[d] < 0 || comps[d] >= s.bounds[d] || math.IsNaN(comps[d]) {
			return fmt.Errorf("%w: component %d = %g", ErrOutsideSupport, d, comps[d])
		}
	}
	return nil
}

func (s *CosineSPOSet) EvaluateV(pos r3.Vec, vals []float64) error {
	if err := s.checkSupport(pos); err != nil {
		return err
	}
	for j := 0; j < s.norb; j++ {
		vals[j] = math.Cos(r3.Dot(s.k[j], pos) + s.theta[j])
	}
	return nil
}

func (s *CosineSPOSet) EvaluateVGL(pos r3.Vec, vals []float64, grads []r3.Vec, laps []float64) error {
	if err := s.checkSupport(pos); err != nil {
		return err
	}
	for j := 0; j < s.norb; j++ {
		arg := r3.Dot(s.k[j], pos) + s.theta[j]
		c := math.Cos(arg)
		ms := -math.Sin(arg)
		vals[j] = c
		grads[j] = r3.Scale(ms, s.k[j])
		laps[j] = -s.kk[j] * c
	}
	return nil
}

func (s *CosineSPOSet) EvaluateBatchVGL(pos []r3.Vec, vals [][]float64, grads [][]r3.Vec, laps [][]float64) error {
	for b := range pos {
		if err := s.EvaluateVGL(pos[b], vals[b], grads[b], laps[b]); err != nil {
			return fmt.Errorf("batch member %d: %w", b, err)
		}
	}
	return nil
}
