package screensaver

import (
	"math/rand/v2"
	"time"
)

// Randomness is the source of every ordering decision the rotation makes.
//
// *rand.Rand from math/rand/v2 satisfies it. Implementations need not be safe for concurrent
// use; State calls them only while the owning Manager holds its lock.
type Randomness interface {
	// Shuffle pseudo-randomizes the order of n elements using swap.
	Shuffle(n int, swap func(i, j int))
	// IntN returns a uniform value in [0, n). n is always > 0.
	IntN(n int) int
}

// NewRandomness returns a deterministic PCG-backed source for the given seed.
func NewRandomness(seed uint64) Randomness {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewDefaultRandomness returns a source seeded from the wall clock.
func NewDefaultRandomness() Randomness {
	//nolint:gosec // presentation order does not need cryptographic randomness.
	return NewRandomness(uint64(time.Now().UnixNano()))
}

// between returns a uniform value in the inclusive range [lo, hi].
func between(rng Randomness, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}
