package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kge/pkg/triples"
)

// base carries the embedding-store lifecycle shared by every model: the
// entity table, the lazy forward constraint, the ranking loss, and the
// model-owned RNG.
type base struct {
	numEntities  int
	numRelations int
	dim          int

	rng  *rand.Rand
	loss RankingLoss

	entities   *mat.Dense
	constraint ConstraintState
}

func newBase(numEntities, numRelations, dim int, seed int64) (base, error) {
	if numEntities <= 0 || numRelations <= 0 || dim <= 0 {
		return base{}, fmt.Errorf("%w: numEntities=%d numRelations=%d dim=%d (all must be positive)",
			ErrConstruction, numEntities, numRelations, dim)
	}
	return base{
		numEntities:  numEntities,
		numRelations: numRelations,
		dim:          dim,
		rng:          rand.New(rand.NewSource(seed)),
		loss:         NewMarginRankingLoss(DefaultMargin),
		constraint:   ConstraintPending,
	}, nil
}

// NumEntities returns the fixed entity count.
func (b *base) NumEntities() int { return b.numEntities }

// NumRelations returns the fixed relation count.
func (b *base) NumRelations() int { return b.numRelations }

// Dim returns the embedding dimension.
func (b *base) Dim() int { return b.dim }

// ConstraintState reports the current forward-constraint state.
func (b *base) ConstraintState() ConstraintState { return b.constraint }

// RearmConstraint marks the entity normalization stale.
func (b *base) RearmConstraint() { b.constraint = ConstraintPending }

// applyForwardConstraint normalizes entity embeddings to unit L2 norm in
// place, at most once per arming of the constraint.
func (b *base) applyForwardConstraint() {
	if b.constraint == ConstraintApplied || b.entities == nil {
		return
	}
	normalizeRows(b.entities)
	b.constraint = ConstraintApplied
}

// clearEntities discards the entity table and re-arms the constraint.
func (b *base) clearEntities() {
	b.entities = nil
	b.constraint = ConstraintPending
}

// ComputeLoss reduces paired positive and negative scores to their mean
// pairwise ranking loss.
func (b *base) ComputeLoss(posScores, negScores []float64) (float64, error) {
	return meanLoss(b.loss, posScores, negScores)
}

// EntityEmbedding returns a copy of one entity's embedding vector.
func (b *base) EntityEmbedding(id int) []float64 {
	if b.entities == nil || id < 0 || id >= b.numEntities {
		return nil
	}
	out := make([]float64, b.dim)
	copy(out, b.entities.RawRowView(id))
	return out
}

// checkEntity validates an entity id against the dense id range.
func (b *base) checkEntity(id int) error {
	if id < 0 || id >= b.numEntities {
		return fmt.Errorf("%w: entity %d (have %d entities)", ErrIDRange, id, b.numEntities)
	}
	return nil
}

// checkRelation validates a relation id against the dense id range.
func (b *base) checkRelation(id int) error {
	if id < 0 || id >= b.numRelations {
		return fmt.Errorf("%w: relation %d (have %d relations)", ErrIDRange, id, b.numRelations)
	}
	return nil
}

// checkTriple validates all three slots of a triple.
func (b *base) checkTriple(t triples.Triple) error {
	if err := b.checkEntity(t.Head); err != nil {
		return err
	}
	if err := b.checkRelation(t.Relation); err != nil {
		return err
	}
	return b.checkEntity(t.Tail)
}

// checkTable validates the shape of a pre-supplied embedding table.
func checkTable(t *mat.Dense, rows, cols int, what string) error {
	if t == nil {
		return nil
	}
	r, c := t.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%w: %s table is %dx%d, want %dx%d", ErrConstruction, what, r, c, rows, cols)
	}
	return nil
}
