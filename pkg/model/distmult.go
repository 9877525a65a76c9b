package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kge/pkg/triples"
)

// DistMult restricts the general bilinear interaction to a diagonal relation
// matrix, so a relation is a plain vector and the score of (h, r, t) is the
// trilinear product sum(h * r * t). The interaction is symmetric in head and
// tail.
//
// Entity and relation tables are Xavier-uniform initialized; relation rows
// are unit-L2-normalized once at initialization, entity rows lazily before
// every forward pass per the forward constraint.
type DistMult struct {
	base

	relations *mat.Dense
}

var _ Model = (*DistMult)(nil)

// DistMultOption configures a DistMult model at construction.
type DistMultOption func(*DistMult)

// WithEntityTable supplies a pre-trained entity table of shape
// (numEntities, dim). InitializeEmpty leaves it untouched.
func WithEntityTable(t *mat.Dense) DistMultOption {
	return func(m *DistMult) { m.entities = t }
}

// WithRelationTable supplies a pre-trained relation table of shape
// (numRelations, dim). InitializeEmpty leaves it untouched.
func WithRelationTable(t *mat.Dense) DistMultOption {
	return func(m *DistMult) { m.relations = t }
}

// WithDistMultLoss replaces the default margin ranking loss.
func WithDistMultLoss(l RankingLoss) DistMultOption {
	return func(m *DistMult) { m.loss = l }
}

// NewDistMult creates an empty DistMult model. Call InitializeEmpty before
// scoring or training.
func NewDistMult(numEntities, numRelations, dim int, seed int64, opts ...DistMultOption) (*DistMult, error) {
	b, err := newBase(numEntities, numRelations, dim, seed)
	if err != nil {
		return nil, err
	}
	m := &DistMult{base: b}
	for _, opt := range opts {
		opt(m)
	}
	if err := checkTable(m.entities, numEntities, dim, "entity"); err != nil {
		return nil, err
	}
	if err := checkTable(m.relations, numRelations, dim, "relation"); err != nil {
		return nil, err
	}
	return m, nil
}

// InitializeEmpty fills any unset table. Already-populated tables are
// skipped, so supplying pre-trained embeddings and calling InitializeEmpty
// is safe.
func (m *DistMult) InitializeEmpty() error {
	if m.entities == nil {
		m.entities = mat.NewDense(m.numEntities, m.dim, nil)
		xavierUniformFill(m.entities, m.rng)
	}
	if m.relations == nil {
		m.relations = mat.NewDense(m.numRelations, m.dim, nil)
		xavierUniformFill(m.relations, m.rng)
		// Relations are unit length at creation and never re-normalized.
		normalizeRows(m.relations)
	}
	return nil
}

// Clear discards both tables and re-arms the forward constraint.
func (m *DistMult) Clear() {
	m.clearEntities()
	m.relations = nil
}

// RelationEmbedding returns a copy of one relation's embedding vector.
func (m *DistMult) RelationEmbedding(id int) []float64 {
	if m.relations == nil || id < 0 || id >= m.numRelations {
		return nil
	}
	out := make([]float64, m.dim)
	copy(out, m.relations.RawRowView(id))
	return out
}

func (m *DistMult) ready() error {
	if m.entities == nil || m.relations == nil {
		return ErrUninitialized
	}
	return nil
}

// interaction computes sum(h * r * t) over the embedding dimension. The
// entity product is formed first so swapping head and tail is bit-identical.
func interaction(h, r, t []float64) float64 {
	s := 0.0
	for d := range h {
		s += (h[d] * t[d]) * r[d]
	}
	return s
}

// ForwardOWA scores one triple per batch row.
func (m *DistMult) ForwardOWA(batch []triples.Triple) ([]float64, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.applyForwardConstraint()

	out := make([]float64, len(batch))
	for i, t := range batch {
		if err := m.checkTriple(t); err != nil {
			return nil, err
		}
		out[i] = interaction(
			m.entities.RawRowView(t.Head),
			m.relations.RawRowView(t.Relation),
			m.entities.RawRowView(t.Tail),
		)
	}
	return out, nil
}

// ForwardCWA scores each (head, relation) pair against every entity as tail.
// With w = h * r the row of scores is the matrix-vector product of the
// entity table with w.
func (m *DistMult) ForwardCWA(batch []triples.Pair) (*mat.Dense, error) {
	return m.forwardAll(batch, func(p triples.Pair) (int, int) { return p.A, p.B })
}

// ForwardInverseCWA scores each (relation, tail) pair against every entity
// as head. DistMult is symmetric in head and tail, so this reduces to the
// same product with w = r * t.
func (m *DistMult) ForwardInverseCWA(batch []triples.Pair) (*mat.Dense, error) {
	return m.forwardAll(batch, func(p triples.Pair) (int, int) { return p.B, p.A })
}

// forwardAll computes one all-entities score row per pair. slots extracts
// the (entity, relation) ids from a pair.
func (m *DistMult) forwardAll(batch []triples.Pair, slots func(triples.Pair) (int, int)) (*mat.Dense, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.applyForwardConstraint()

	scores := mat.NewDense(len(batch), m.numEntities, nil)
	w := make([]float64, m.dim)
	for i, p := range batch {
		ent, rel := slots(p)
		if err := m.checkEntity(ent); err != nil {
			return nil, err
		}
		if err := m.checkRelation(rel); err != nil {
			return nil, err
		}
		floats.MulTo(w, m.entities.RawRowView(ent), m.relations.RawRowView(rel))

		row := mat.NewVecDense(m.numEntities, scores.RawRowView(i))
		row.MulVec(m.entities, mat.NewVecDense(m.dim, w))
	}
	return scores, nil
}

// Step performs one SGD update on a (positive, negative) pair. Gradients for
// both triples are computed against the pre-update parameters before any
// write, so shared entity or relation rows accumulate both contributions.
func (m *DistMult) Step(pos, neg triples.Triple, lr float64) (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if err := m.checkTriple(pos); err != nil {
		return 0, err
	}
	if err := m.checkTriple(neg); err != nil {
		return 0, err
	}
	m.applyForwardConstraint()

	hp := m.entities.RawRowView(pos.Head)
	rp := m.relations.RawRowView(pos.Relation)
	tp := m.entities.RawRowView(pos.Tail)
	hn := m.entities.RawRowView(neg.Head)
	rn := m.relations.RawRowView(neg.Relation)
	tn := m.entities.RawRowView(neg.Tail)

	sPos := interaction(hp, rp, tp)
	sNeg := interaction(hn, rn, tn)
	loss := m.loss.Pairwise(sPos, sNeg)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, ErrNonFiniteLoss
	}

	dPos, dNeg := m.loss.Grad(sPos, sNeg)
	if dPos == 0 && dNeg == 0 {
		return loss, nil
	}

	d := m.dim
	gradHP := make([]float64, d)
	gradRP := make([]float64, d)
	gradTP := make([]float64, d)
	gradHN := make([]float64, d)
	gradRN := make([]float64, d)
	gradTN := make([]float64, d)
	for k := 0; k < d; k++ {
		gradHP[k] = dPos * rp[k] * tp[k]
		gradRP[k] = dPos * hp[k] * tp[k]
		gradTP[k] = dPos * hp[k] * rp[k]
		gradHN[k] = dNeg * rn[k] * tn[k]
		gradRN[k] = dNeg * hn[k] * tn[k]
		gradTN[k] = dNeg * hn[k] * rn[k]
	}

	floats.AddScaled(hp, -lr, gradHP)
	floats.AddScaled(rp, -lr, gradRP)
	floats.AddScaled(tp, -lr, gradTP)
	floats.AddScaled(hn, -lr, gradHN)
	floats.AddScaled(rn, -lr, gradRN)
	floats.AddScaled(tn, -lr, gradTN)

	return loss, nil
}
