package triples

import (
	"math"
	"math/rand"
)

// powerSample flattens the frequency distribution the same way word2vec-style
// negative sampling does.
const powerSample = 0.75

// aliasCell is one cell of a Walker alias table.
type aliasCell struct {
	alias int
	prob  float64
}

// FrequencySampler corrupts triples with entities drawn proportionally to
// their triple frequency raised to 0.75. Frequent entities make harder
// negatives than uniform draws on corpora with skewed degree distributions.
type FrequencySampler struct {
	numEntities int
	table       []aliasCell
}

// NewFrequencySampler builds the sampler from the positive triples.
func NewFrequencySampler(numEntities int, pos []Triple) *FrequencySampler {
	counts := make([]float64, numEntities)
	support := 0
	for _, t := range pos {
		if counts[t.Head] == 0 {
			support++
		}
		counts[t.Head]++
		if counts[t.Tail] == 0 {
			support++
		}
		counts[t.Tail]++
	}
	if support <= 1 {
		// A single-entity support can only ever draw that entity, which
		// sample must avoid. Degrade to uniform.
		counts = make([]float64, numEntities)
	}
	return &FrequencySampler{
		numEntities: numEntities,
		table:       buildAliasTable(counts, powerSample),
	}
}

// Corrupt implements NegativeSampler.
func (s *FrequencySampler) Corrupt(pos Triple, rng *rand.Rand) Triple {
	neg := pos
	if rng.Float64() < 0.5 {
		neg.Head = s.sample(pos.Head, rng)
	} else {
		neg.Tail = s.sample(pos.Tail, rng)
	}
	return neg
}

func (s *FrequencySampler) sample(avoid int, rng *rand.Rand) int {
	if s.numEntities <= 1 {
		return avoid
	}
	for {
		id := aliasSample(s.table, rng)
		if id != avoid {
			return id
		}
	}
}

// buildAliasTable builds an alias table for O(1) weighted sampling using
// Vose's method. Weights are raised to power before normalization; an
// all-zero distribution degrades to uniform.
func buildAliasTable(weights []float64, power float64) []aliasCell {
	n := len(weights)
	if n == 0 {
		return nil
	}

	table := make([]aliasCell, n)

	sum := 0.0
	norm := make([]float64, n)
	for i, w := range weights {
		if w > 0 {
			norm[i] = math.Pow(w, power)
		}
		sum += norm[i]
	}

	if sum == 0 {
		for i := range table {
			table[i] = aliasCell{alias: i, prob: 1.0}
		}
		return table
	}

	for i := range norm {
		norm[i] = norm[i] * float64(n) / sum
	}

	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i, p := range norm {
		if p < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]
		g := large[len(large)-1]
		large = large[:len(large)-1]

		table[l] = aliasCell{alias: g, prob: norm[l]}

		norm[g] = norm[g] + norm[l] - 1.0
		if norm[g] < 1.0 {
			small = append(small, g)
		} else {
			large = append(large, g)
		}
	}

	for len(large) > 0 {
		g := large[len(large)-1]
		large = large[:len(large)-1]
		table[g] = aliasCell{alias: g, prob: 1.0}
	}
	for len(small) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]
		table[l] = aliasCell{alias: l, prob: 1.0}
	}

	return table
}

// aliasSample draws one index from the alias table in O(1).
func aliasSample(table []aliasCell, rng *rand.Rand) int {
	i := rng.Intn(len(table))
	if rng.Float64() < table[i].prob {
		return i
	}
	return table[i].alias
}
