// Package eval ranks test triples against a trained embedding model. For
// each test triple the true tail is ranked among all entities by the model's
// closed-world tail scores, and the true head among all entities by the
// inverse closed-world head scores; mean rank and hits@k aggregate both
// directions.
package eval

import (
	"fmt"

	"github.com/cnclabs/kge/pkg/model"
	"github.com/cnclabs/kge/pkg/triples"
)

// DefaultKs are the hits@k cutoffs reported when none are configured.
var DefaultKs = []int{1, 3, 5, 10}

// Metrics is the rank-based evaluation summary.
type Metrics struct {
	MeanRank float64         `yaml:"mean_rank"`
	HitsAtK  map[int]float64 `yaml:"hits_at_k"`
}

// Evaluator computes rank metrics over a test set.
type Evaluator struct {
	// Ks are the hits@k cutoffs. Nil uses DefaultKs.
	Ks []int

	// Known triples (typically train plus test) whose candidate entities
	// are excluded from rankings when Filter is set, so other true answers
	// do not push the expected answer down.
	Filter bool
	Known  []triples.Triple
}

type slotKey struct {
	a, b int
}

// Evaluate ranks every test triple in both prediction directions.
func (e *Evaluator) Evaluate(m model.Model, test []triples.Triple) (*Metrics, error) {
	if len(test) == 0 {
		return nil, fmt.Errorf("eval: empty test set")
	}

	ks := e.Ks
	if ks == nil {
		ks = DefaultKs
	}

	var knownTails, knownHeads map[slotKey]map[int]bool
	if e.Filter {
		knownTails = make(map[slotKey]map[int]bool)
		knownHeads = make(map[slotKey]map[int]bool)
		for _, t := range e.Known {
			addKnown(knownTails, slotKey{t.Head, t.Relation}, t.Tail)
			addKnown(knownHeads, slotKey{t.Relation, t.Tail}, t.Head)
		}
	}

	rankSum := 0.0
	hits := make(map[int]int, len(ks))
	total := 0

	for _, t := range test {
		tails, err := m.ForwardCWA([]triples.Pair{{A: t.Head, B: t.Relation}})
		if err != nil {
			return nil, fmt.Errorf("eval: tail scores for %+v: %w", t, err)
		}
		rank := rankOf(tails.RawRowView(0), t.Tail, knownTails[slotKey{t.Head, t.Relation}])
		rankSum += float64(rank)
		countHits(hits, ks, rank)
		total++

		heads, err := m.ForwardInverseCWA([]triples.Pair{{A: t.Relation, B: t.Tail}})
		if err != nil {
			return nil, fmt.Errorf("eval: head scores for %+v: %w", t, err)
		}
		rank = rankOf(heads.RawRowView(0), t.Head, knownHeads[slotKey{t.Relation, t.Tail}])
		rankSum += float64(rank)
		countHits(hits, ks, rank)
		total++
	}

	out := &Metrics{
		MeanRank: rankSum / float64(total),
		HitsAtK:  make(map[int]float64, len(ks)),
	}
	for _, k := range ks {
		out.HitsAtK[k] = float64(hits[k]) / float64(total)
	}
	return out, nil
}

func addKnown(m map[slotKey]map[int]bool, key slotKey, id int) {
	if m[key] == nil {
		m[key] = make(map[int]bool)
	}
	m[key][id] = true
}

// rankOf returns the 1-based rank of the true entity within one score row.
// Higher score ranks better; filtered known positives other than the true
// entity do not count against it.
func rankOf(scores []float64, trueID int, filtered map[int]bool) int {
	trueScore := scores[trueID]
	rank := 1
	for j, s := range scores {
		if j == trueID {
			continue
		}
		if filtered != nil && filtered[j] {
			continue
		}
		if s > trueScore {
			rank++
		}
	}
	return rank
}

func countHits(hits map[int]int, ks []int, rank int) {
	for _, k := range ks {
		if rank <= k {
			hits[k]++
		}
	}
}
