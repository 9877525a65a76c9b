package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kge/pkg/model"
	"github.com/cnclabs/kge/pkg/triples"
)

// newRankModel fixes a DistMult whose scores are fully hand-checkable:
// unit-axis entities and an all-ones relation.
//
// For test triple (0, 0, 1) the tail scores over entities are [1, 0, -1, 0]
// and the head scores are [0, 1, 0, -1]; the true answer ranks second in both
// directions under strict greater-than counting.
func newRankModel(t *testing.T) model.Model {
	t.Helper()
	entities := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		-1, 0,
		0, -1,
	})
	relations := mat.NewDense(1, 2, []float64{1, 1})
	m, err := model.NewDistMult(4, 1, 2, 0,
		model.WithEntityTable(entities), model.WithRelationTable(relations))
	require.NoError(t, err)
	require.NoError(t, m.InitializeEmpty())
	return m
}

func TestEvaluateRawRanks(t *testing.T) {
	m := newRankModel(t)
	e := &Evaluator{Ks: []int{1, 2}}

	metrics, err := e.Evaluate(m, []triples.Triple{{Head: 0, Relation: 0, Tail: 1}})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, metrics.MeanRank, 1e-12)
	assert.InDelta(t, 0.0, metrics.HitsAtK[1], 1e-12)
	assert.InDelta(t, 1.0, metrics.HitsAtK[2], 1e-12)
}

func TestEvaluateFilteredRanks(t *testing.T) {
	m := newRankModel(t)

	// Entity 0 outranks the true tail, but (0, 0, 0) is a known positive, so
	// filtering lifts the tail rank to 1. The head direction is unaffected.
	e := &Evaluator{
		Ks:     []int{1},
		Filter: true,
		Known: []triples.Triple{
			{Head: 0, Relation: 0, Tail: 0},
			{Head: 0, Relation: 0, Tail: 1},
		},
	}

	metrics, err := e.Evaluate(m, []triples.Triple{{Head: 0, Relation: 0, Tail: 1}})
	require.NoError(t, err)

	assert.InDelta(t, 1.5, metrics.MeanRank, 1e-12, "tail rank 1 filtered, head rank 2")
	assert.InDelta(t, 0.5, metrics.HitsAtK[1], 1e-12)
}

func TestEvaluateFilterNeverHidesTrueAnswer(t *testing.T) {
	m := newRankModel(t)

	// The test triple itself appears in Known; the true entity must still be
	// ranked rather than skipped.
	e := &Evaluator{
		Filter: true,
		Known:  []triples.Triple{{Head: 0, Relation: 0, Tail: 1}},
	}
	metrics, err := e.Evaluate(m, []triples.Triple{{Head: 0, Relation: 0, Tail: 1}})
	require.NoError(t, err)
	assert.Greater(t, metrics.MeanRank, 0.0)
}

func TestEvaluateDefaultKs(t *testing.T) {
	m := newRankModel(t)
	e := &Evaluator{}

	metrics, err := e.Evaluate(m, []triples.Triple{{Head: 0, Relation: 0, Tail: 1}})
	require.NoError(t, err)
	for _, k := range DefaultKs {
		assert.Contains(t, metrics.HitsAtK, k)
	}
	assert.InDelta(t, 1.0, metrics.HitsAtK[10], 1e-12, "rank 2 always hits at 10 with 4 entities")
}

func TestEvaluateEmptyTestSet(t *testing.T) {
	m := newRankModel(t)
	e := &Evaluator{}
	_, err := e.Evaluate(m, nil)
	assert.Error(t, err)
}

func TestRankOf(t *testing.T) {
	scores := []float64{3, 1, 2, 1}

	assert.Equal(t, 1, rankOf(scores, 0, nil))
	assert.Equal(t, 3, rankOf(scores, 1, nil), "ties do not hurt the rank")
	assert.Equal(t, 2, rankOf(scores, 2, nil))
	assert.Equal(t, 1, rankOf(scores, 2, map[int]bool{0: true}))
}
