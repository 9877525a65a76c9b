package triples

import "math/rand"

// NegativeSampler produces corrupted counterparts for positive triples.
type NegativeSampler interface {
	// Corrupt returns a negative triple derived from pos by replacing the
	// head or the tail with another entity.
	Corrupt(pos Triple, rng *rand.Rand) Triple
}

// UniformSampler corrupts the head or the tail (chosen by fair coin) with an
// entity drawn uniformly from the full entity set.
type UniformSampler struct {
	NumEntities int
}

// Corrupt implements NegativeSampler.
func (s UniformSampler) Corrupt(pos Triple, rng *rand.Rand) Triple {
	neg := pos
	if rng.Float64() < 0.5 {
		neg.Head = s.sample(pos.Head, rng)
	} else {
		neg.Tail = s.sample(pos.Tail, rng)
	}
	return neg
}

// sample draws an entity id distinct from avoid when more than one entity
// exists.
func (s UniformSampler) sample(avoid int, rng *rand.Rand) int {
	if s.NumEntities <= 1 {
		return avoid
	}
	for {
		id := rng.Intn(s.NumEntities)
		if id != avoid {
			return id
		}
	}
}

// CorruptAll pairs every positive triple with one negative sample.
// The result is index-aligned with pos.
func CorruptAll(pos []Triple, sampler NegativeSampler, rng *rand.Rand) []Triple {
	neg := make([]Triple, len(pos))
	for i, p := range pos {
		neg[i] = sampler.Corrupt(p, rng)
	}
	return neg
}
