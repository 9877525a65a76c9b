// Package model implements knowledge-graph embedding models trained with
// stochastic gradient descent over (head, relation, tail) triples.
//
// Every model owns an embedding store: a dense entity table and one or more
// relation tables, lazily populated by InitializeEmpty and discarded by
// Clear. Scoring runs in three modes:
//
//   - ForwardOWA scores one explicit triple per batch row (open world).
//   - ForwardCWA scores fixed (head, relation) pairs against every entity as
//     tail, one row per pair (closed world).
//   - ForwardInverseCWA mirrors ForwardCWA for head prediction with fixed
//     (relation, tail) pairs.
//
// Entity embeddings must be unit L2 norm during scoring. The normalization is
// applied lazily before a forward pass and at most once per arming of the
// forward constraint; the training loop re-arms the constraint after each
// optimizer step because the update invalidates the norms.
package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kge/pkg/triples"
)

var (
	// ErrConstruction is returned when a model is requested with
	// inconsistent or missing entity/relation counts or table shapes.
	ErrConstruction = errors.New("model: invalid construction")
	// ErrUninitialized is returned when scoring or stepping is attempted
	// before InitializeEmpty has populated the embedding tables.
	ErrUninitialized = errors.New("model: embeddings not initialized")
	// ErrIDRange is returned when a triple references an id outside the
	// store's dense id range.
	ErrIDRange = errors.New("model: id out of range")
	// ErrShape is returned on a rank or dimension mismatch between inputs
	// and the stored embeddings.
	ErrShape = errors.New("model: shape mismatch")
	// ErrNonFiniteLoss is returned when a training step produces a NaN or
	// infinite loss. The run is expected to abort.
	ErrNonFiniteLoss = errors.New("model: non-finite loss")
)

// ConstraintState tracks whether the lazy entity normalization has been
// applied since the constraint was last armed.
type ConstraintState int

const (
	// ConstraintPending means entity embeddings may violate the unit-norm
	// invariant and will be normalized before the next forward pass.
	ConstraintPending ConstraintState = iota
	// ConstraintApplied means entity embeddings are known unit-norm and
	// forward passes skip the normalization.
	ConstraintApplied
)

// String implements fmt.Stringer.
func (s ConstraintState) String() string {
	switch s {
	case ConstraintPending:
		return "pending"
	case ConstraintApplied:
		return "applied"
	default:
		return fmt.Sprintf("ConstraintState(%d)", int(s))
	}
}

// Model is the shared lifecycle of every embedding model.
type Model interface {
	// InitializeEmpty allocates and fills any unset embedding table.
	// Tables that are already populated (for example supplied pre-trained)
	// are skipped, so the call is idempotent.
	InitializeEmpty() error

	// Clear discards all embedding tables and re-arms the forward
	// constraint, returning the model to its empty, re-initializable state.
	Clear()

	// ForwardOWA scores one triple per batch row. Output length equals the
	// batch length.
	ForwardOWA(batch []triples.Triple) ([]float64, error)

	// ForwardCWA scores each (head, relation) pair against every entity as
	// tail. Output shape: len(batch) x NumEntities.
	ForwardCWA(batch []triples.Pair) (*mat.Dense, error)

	// ForwardInverseCWA scores each (relation, tail) pair against every
	// entity as head. Output shape: len(batch) x NumEntities.
	ForwardInverseCWA(batch []triples.Pair) (*mat.Dense, error)

	// ComputeLoss reduces paired positive and negative scores to a scalar
	// with the model's ranking loss.
	ComputeLoss(posScores, negScores []float64) (float64, error)

	// Step performs one SGD update on a (positive, negative) triple pair
	// and returns the pairwise loss before the update. Step leaves the
	// forward constraint applied; callers that keep training must re-arm it
	// with RearmConstraint since the update invalidates the entity norms.
	Step(pos, neg triples.Triple, lr float64) (float64, error)

	// RearmConstraint marks the entity normalization stale so the next
	// forward pass reapplies it.
	RearmConstraint()

	// ConstraintState reports the current forward-constraint state.
	ConstraintState() ConstraintState

	NumEntities() int
	NumRelations() int
	Dim() int

	// EntityEmbedding returns a copy of one entity's embedding vector, or
	// nil if the id is out of range or the store is uninitialized.
	EntityEmbedding(id int) []float64

	// RelationEmbedding returns a copy of one relation's parameters,
	// flattened row-major for matrix-valued relations. Nil on a bad id or
	// an uninitialized store.
	RelationEmbedding(id int) []float64
}
