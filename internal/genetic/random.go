package genetic

import (
	"math/rand"
	"sync"
)

// Random is a seedable random source safe for concurrent use. Labs,
// selection and evaluators take one explicitly so runs are reproducible.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a source seeded with seed.
func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

// Uniform returns a value in [min, max).
func (r *Random) Uniform(min, max float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rng.Float64()*(max-min)
}

// Gaussian returns a normally distributed value.
func (r *Random) Gaussian(mean, stddev float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return mean + r.rng.NormFloat64()*stddev
}

// Bool returns true with probability p. p ≤ 0 never and p ≥ 1 always
// returns true.
func (r *Random) Bool(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < p
}

// Int63 returns a non-negative pseudo-random number, used to seed child
// sources.
func (r *Random) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Int63()
}
