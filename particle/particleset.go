// particleset.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package particle

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kgasperich/miniqmc/rng"
)

// ParticleSet owns the positions of one species of particles together with
// the per-particle log-wavefunction gradient and Laplacian caches. A walker
// owns its electron set exclusively; ion sets are immutable after setup and
// shared read-only.
//
// Between MakeMoveAndCheck and Accept/Reject for the active particle the set
// holds both the committed position in R and the trial position in a scratch
// slot. Only Accept publishes the trial position.
type ParticleSet struct {
	R   []r3.Vec
	G   []r3.Vec  // grad log psi, filled by the sweep finalize
	Lap []float64 // laplacian log psi, filled by the sweep finalize

	Lattice *Lattice

	active    int
	activePos r3.Vec
	hasActive bool
}

// NewParticleSet allocates a set of n particles at the origin.
func NewParticleSet(n int, lat *Lattice) *ParticleSet {
	return &ParticleSet{
		R:       make([]r3.Vec, n),
		G:       make([]r3.Vec, n),
		Lap:     make([]float64, n),
		Lattice: lat,
		active:  -1,
	}
}

// N returns the number of particles.
func (p *ParticleSet) N() int { return len(p.R) }

// SetActive marks the particle the current move operates on.
func (p *ParticleSet) SetActive(i int) {
	p.active = i
	p.hasActive = false
}

// MakeMoveAndCheck stores the trial position R[i]+dr, wrapped into the cell,
// and reports whether the move is geometrically valid. An invalid move leaves
// no trial state behind.
func (p *ParticleSet) MakeMoveAndCheck(i int, dr r3.Vec) bool {
	p.active = i
	wrapped, ok := p.Lattice.ApplyBoundary(r3.Add(p.R[i], dr))
	if !ok {
		p.hasActive = false
		return false
	}
	p.activePos = wrapped
	p.hasActive = true
	return true
}

// ActivePos returns the trial position of the active particle. Valid only
// after a successful MakeMoveAndCheck.
func (p *ParticleSet) ActivePos() r3.Vec { return p.activePos }

// Active returns the index of the active particle, or -1.
func (p *ParticleSet) Active() int { return p.active }

// AcceptMove commits the trial position of particle i.
func (p *ParticleSet) AcceptMove(i int) {
	if p.hasActive && p.active == i {
		p.R[i] = p.activePos
	}
	p.hasActive = false
}

// RejectMove discards the trial position; R is untouched.
func (p *ParticleSet) RejectMove(i int) {
	p.hasActive = false
}

// DonePbyP ends a particle-by-particle sweep.
func (p *ParticleSet) DonePbyP() {
	p.active = -1
	p.hasActive = false
}

// Clone deep-copies the set. Walker replication at simulation start.
func (p *ParticleSet) Clone() *ParticleSet {
	c := NewParticleSet(p.N(), p.Lattice)
	copy(c.R, p.R)
	copy(c.G, p.G)
	copy(c.Lap, p.Lap)
	return c
}

// BuildIons places one ion per tile of an na x nb x nc tiling of cubic cells
// with edge a, at the tile centers, and returns the ion set together with the
// supercell lattice.
func BuildIons(na, nb, nc int, a float64) (*ParticleSet, *Lattice) {
	lat := &Lattice{Edge: [3]float64{float64(na) * a, float64(nb) * a, float64(nc) * a}}
	ions := NewParticleSet(na*nb*nc, lat)
	idx := 0
	for i := 0; i < na; i++ {
		for j := 0; j < nb; j++ {
			for k := 0; k < nc; k++ {
				ions.R[idx] = r3.Vec{
					X: (float64(i) + 0.5) * a,
					Y: (float64(j) + 0.5) * a,
					Z: (float64(k) + 0.5) * a,
				}
				idx++
			}
		}
	}
	return ions, lat
}

// ElectronsPerIon fixes the electron count of the benchmark system.
const ElectronsPerIon = 2

// CountElectrons returns the electron count for an ion set.
func CountElectrons(ions *ParticleSet) int {
	return ElectronsPerIon * ions.N()
}

// BuildElectrons scatters nels electrons uniformly in the cell using the
// walker's own stream, so every walker starts from a distinct deterministic
// configuration.
func BuildElectrons(nels int, lat *Lattice, stream *rng.Stream) *ParticleSet {
	els := NewParticleSet(nels, lat)
	for i := range els.R {
		els.R[i] = r3.Vec{
			X: stream.Uniform() * lat.Edge[0],
			Y: stream.Uniform() * lat.Edge[1],
			Z: stream.Uniform() * lat.Edge[2],
		}
	}
	return els
}
