package solver

import "math/rand"

// RNG is the random source the seeder and optimizer draw from. It is
// abstracted so a solve run can be replayed deterministically from a fixed
// seed.
type RNG interface {
	Intn(n int) int
	Float64() float64
}

// NewRNG returns the default *rand.Rand-backed RNG seeded with the given
// value. The same seed always produces the same move sequence.
func NewRNG(seed int64) RNG {
	return rand.New(rand.NewSource(seed))
}
