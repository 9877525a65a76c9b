package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kge/pkg/triples"
)

func newTestSE(t *testing.T, numEntities, numRelations, dim int, opts ...SEOption) *SE {
	t.Helper()
	m, err := NewSE(numEntities, numRelations, dim, 11, opts...)
	require.NoError(t, err)
	require.NoError(t, m.InitializeEmpty())
	return m
}

// identityTables returns left/right projection tables holding the identity
// matrix for every relation, so projection leaves entities unchanged.
func identityTables(numRelations, dim int) (left, right *mat.Dense) {
	left = mat.NewDense(numRelations, dim*dim, nil)
	right = mat.NewDense(numRelations, dim*dim, nil)
	for r := 0; r < numRelations; r++ {
		for d := 0; d < dim; d++ {
			left.Set(r, d*dim+d, 1)
			right.Set(r, d*dim+d, 1)
		}
	}
	return left, right
}

func TestSEConstruction(t *testing.T) {
	_, err := NewSE(0, 1, 4, 0)
	assert.ErrorIs(t, err, ErrConstruction)

	_, err = NewSE(4, 1, 4, 0, WithScoringNorm(0))
	assert.ErrorIs(t, err, ErrConstruction)

	bad := mat.NewDense(1, 4, nil) // want 1 x 16
	_, err = NewSE(4, 1, 4, 0, WithSELeftTable(bad))
	assert.ErrorIs(t, err, ErrConstruction)
}

func TestSEInitialization(t *testing.T) {
	dim := 8
	m := newTestSE(t, 10, 3, dim)

	bound := 6.0 / math.Sqrt(float64(dim))
	for i := 0; i < 10; i++ {
		for _, v := range m.EntityEmbedding(i) {
			assert.LessOrEqual(t, math.Abs(v), bound)
		}
	}

	// Both projection tables are unit length per relation after sampling.
	for r := 0; r < 3; r++ {
		assert.InDelta(t, 1.0, floats.Norm(m.left.RawRowView(r), 2), 1e-12)
		assert.InDelta(t, 1.0, floats.Norm(m.right.RawRowView(r), 2), 1e-12)
	}
}

func TestSEProjectionShape(t *testing.T) {
	dim := 5
	v := make([]float64, dim)
	v[2] = 1
	M := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		M.Set(i, 2, float64(i))
	}

	out := make([]float64, dim)
	project(out, M, v)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, out, "project must return the matrix-vector product over dim")
}

// TestSEScoreTracksProjectedDistance pins the scoring function to the
// projected distance: with identity projections and unit-norm entities at
// growing angles from the head, the score must strictly decrease.
func TestSEScoreTracksProjectedDistance(t *testing.T) {
	for _, p := range []int{1, 2} {
		angles := []float64{0.3, 0.9, 1.8, 2.8}
		entities := mat.NewDense(len(angles)+1, 2, nil)
		entities.Set(0, 0, 1) // head at angle 0
		for i, a := range angles {
			entities.Set(i+1, 0, math.Cos(a))
			entities.Set(i+1, 1, math.Sin(a))
		}
		left, right := identityTables(1, 2)

		m, err := NewSE(len(angles)+1, 1, 2, 0,
			WithSEEntityTable(entities),
			WithSELeftTable(left),
			WithSERightTable(right),
			WithScoringNorm(p))
		require.NoError(t, err)
		require.NoError(t, m.InitializeEmpty())

		prev := math.Inf(1)
		for tail := 1; tail <= len(angles); tail++ {
			scores, err := m.ForwardOWA([]triples.Triple{{Head: 0, Relation: 0, Tail: tail}})
			require.NoError(t, err)
			assert.Less(t, scores[0], prev, "p=%d tail %d", p, tail)
			prev = scores[0]
		}
	}
}

func TestSECWAColumnsMatchOWA(t *testing.T) {
	m := newTestSE(t, 5, 2, 4)

	head, rel := 2, 1
	all, err := m.ForwardCWA([]triples.Pair{{A: head, B: rel}})
	require.NoError(t, err)

	for tail := 0; tail < 5; tail++ {
		single, err := m.ForwardOWA([]triples.Triple{{Head: head, Relation: rel, Tail: tail}})
		require.NoError(t, err)
		assert.InDelta(t, single[0], all.At(0, tail), 1e-9, "tail %d", tail)
	}
}

func TestSEInverseCWAColumnsMatchOWA(t *testing.T) {
	m := newTestSE(t, 5, 2, 4)

	rel, tail := 0, 4
	all, err := m.ForwardInverseCWA([]triples.Pair{{A: rel, B: tail}})
	require.NoError(t, err)

	for head := 0; head < 5; head++ {
		single, err := m.ForwardOWA([]triples.Triple{{Head: head, Relation: rel, Tail: tail}})
		require.NoError(t, err)
		assert.InDelta(t, single[0], all.At(0, head), 1e-9, "head %d", head)
	}
}

func TestSEForwardConstraintIdempotent(t *testing.T) {
	m := newTestSE(t, 4, 2, 4)
	batch := []triples.Triple{{Head: 0, Relation: 0, Tail: 1}}

	_, err := m.ForwardOWA(batch)
	require.NoError(t, err)

	snapshot := make([][]float64, 4)
	for i := range snapshot {
		snapshot[i] = m.EntityEmbedding(i)
	}
	_, err = m.ForwardOWA(batch)
	require.NoError(t, err)
	for i := range snapshot {
		assert.Equal(t, snapshot[i], m.EntityEmbedding(i))
	}
}

func TestSEClearAndReinitialize(t *testing.T) {
	m := newTestSE(t, 4, 2, 3)
	_, err := m.ForwardOWA([]triples.Triple{{Head: 0, Relation: 1, Tail: 2}})
	require.NoError(t, err)
	require.Equal(t, ConstraintApplied, m.ConstraintState())

	m.Clear()
	assert.Equal(t, ConstraintPending, m.ConstraintState())
	assert.Nil(t, m.EntityEmbedding(0))
	assert.Nil(t, m.RelationEmbedding(0))

	require.NoError(t, m.InitializeEmpty())
	assert.Len(t, m.EntityEmbedding(0), 3)
	assert.Len(t, m.RelationEmbedding(1), 2*3*3, "left and right matrices, flattened")
	assert.Equal(t, ConstraintPending, m.ConstraintState())
}

// TestSESingleStep runs one hand-checkable SGD step with identity
// projections and orthogonal unit entities: pre-step loss is exactly 1.0
// under the L1 score and must shrink after the update.
func TestSESingleStep(t *testing.T) {
	entities := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	left, right := identityTables(2, 4)
	m, err := NewSE(4, 2, 4, 0,
		WithSEEntityTable(entities),
		WithSELeftTable(left),
		WithSERightTable(right),
		WithScoringNorm(1))
	require.NoError(t, err)
	require.NoError(t, m.InitializeEmpty())

	pos := triples.Triple{Head: 0, Relation: 0, Tail: 1}
	neg := triples.Triple{Head: 0, Relation: 0, Tail: 2}

	preScores, err := m.ForwardOWA([]triples.Triple{pos, neg})
	require.NoError(t, err)
	assert.InDelta(t, -2.0, preScores[0], 1e-12)
	assert.InDelta(t, -2.0, preScores[1], 1e-12)
	preLoss, err := m.ComputeLoss(preScores[:1], preScores[1:])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, preLoss, 1e-12)

	stepLoss, err := m.Step(pos, neg, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, preLoss, stepLoss, 1e-12)
	m.RearmConstraint()

	postScores, err := m.ForwardOWA([]triples.Triple{pos, neg})
	require.NoError(t, err)
	postLoss, err := m.ComputeLoss(postScores[:1], postScores[1:])
	require.NoError(t, err)
	assert.LessOrEqual(t, postLoss, preLoss)
	assert.Greater(t, postScores[0], preScores[0], "positive pair should move closer")
	assert.Less(t, postScores[1], preScores[1], "negative pair should move apart")

	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, floats.Norm(m.EntityEmbedding(i), 2), 1e-5)
	}
}

func TestSEStepSharedRelationAccumulates(t *testing.T) {
	// Positive and negative share the relation; both rank-one updates must
	// land on the same projection matrices without clobbering each other.
	entities := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		-1, 0,
	})
	left, right := identityTables(1, 2)
	m, err := NewSE(3, 1, 2, 0,
		WithSEEntityTable(entities),
		WithSELeftTable(left),
		WithSERightTable(right),
		WithScoringNorm(1))
	require.NoError(t, err)
	require.NoError(t, m.InitializeEmpty())

	before := m.RelationEmbedding(0)
	loss, err := m.Step(
		triples.Triple{Head: 0, Relation: 0, Tail: 1},
		triples.Triple{Head: 0, Relation: 0, Tail: 2},
		0.05,
	)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
	assert.NotEqual(t, before, m.RelationEmbedding(0), "active step should move the projections")
}

func TestSEIDRange(t *testing.T) {
	m := newTestSE(t, 4, 2, 3)
	_, err := m.ForwardOWA([]triples.Triple{{Head: 0, Relation: 5, Tail: 1}})
	assert.ErrorIs(t, err, ErrIDRange)
	_, err = m.ForwardCWA([]triples.Pair{{A: 9, B: 0}})
	assert.ErrorIs(t, err, ErrIDRange)
}
