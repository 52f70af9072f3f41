// primes.go --  This file is part of the miniqmc project.
//
//	miniqmc is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// ------------------------------------------------

// Package rng provides reproducible per-walker random streams seeded from a
// shared set of prime numbers. Each walker owns its stream exclusively; there
// is no global generator state.
package rng

// PrimeNumberSet hands out distinct prime seeds by index. Index i always maps
// to the same prime, so seed derivation is pure: two runs that assign the
// same index to a walker give that walker the same stream.
type PrimeNumberSet struct {
	primes []uint64
}

// NewPrimeNumberSet returns a set pre-grown to a small working size.
func NewPrimeNumberSet() *PrimeNumberSet {
	s := &PrimeNumberSet{primes: []uint64{3}}
	s.grow(16)
	return s
}

// Get returns the i-th prime of the set, growing the set on demand.
func (s *PrimeNumberSet) Get(i int) uint64 {
	if i < 0 {
		i = 0
	}
	if i >= len(s.primes) {
		s.grow(i + 1)
	}
	return s.primes[i]
}

func (s *PrimeNumberSet) grow(n int) {
	cand := s.primes[len(s.primes)-1]
	for len(s.primes) < n {
		cand += 2
		if isPrime(cand) {
			s.primes = append(s.primes, cand)
		}
	}
}

func isPrime(n uint64) bool {
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
