// distance.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package particle

// DistanceTable holds minimum-image distances from every particle of a
// source set to every particle of a target set. D[i][j] is the distance from
// source particle i to target particle j as of the last Update.
type DistanceTable struct {
	D [][]float64
}

// NewDistanceTable allocates an nSource x nTarget table.
func NewDistanceTable(nSource, nTarget int) *DistanceTable {
	d := make([][]float64, nSource)
	for i := range d {
		d[i] = make([]float64, nTarget)
	}
	return &DistanceTable{D: d}
}

// Update recomputes all distances from src to tgt under src's lattice.
func (dt *DistanceTable) Update(src, tgt *ParticleSet) {
	lat := src.Lattice
	for i := range src.R {
		for j := range tgt.R {
			dt.D[i][j] = lat.Distance(src.R[i], tgt.R[j])
		}
	}
}
