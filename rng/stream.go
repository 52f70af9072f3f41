// stream.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------
package rng

import "golang.org/x/exp/rand"

// Stream is a walker-exclusive source of uniform and normal draws. The same
// seed always reproduces the same sequence, which the drivers rely on for
// run-to-run and batched-vs-single equivalence checks.
type Stream struct {
	src *rand.Rand
}

// NewStream creates a stream from a seed, typically a prime from a
// PrimeNumberSet.
func NewStream(seed uint64) *Stream {
	return &Stream{src: rand.New(rand.NewSource(seed))}
}

// Uniform draws one sample from [0, 1).
func (s *Stream) Uniform() float64 { return s.src.Float64() }

// Normal draws one standard-normal sample.
func (s *Stream) Normal() float64 { return s.src.NormFloat64() }

// GenerateUniform fills dst with uniform [0, 1) samples.
func (s *Stream) GenerateUniform(dst []float64) {
	for i := range dst {
		dst[i] = s.src.Float64()
	}
}

// GenerateNormal fills dst with standard-normal samples.
func (s *Stream) GenerateNormal(dst []float64) {
	for i := range dst {
		dst[i] = s.src.NormFloat64()
	}
}
