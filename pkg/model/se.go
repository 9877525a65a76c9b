package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kge/pkg/triples"
)

// DefaultScoringNorm is the default p-norm order for Structured Embedding.
const DefaultScoringNorm = 1

// normEps guards the p=2 gradient against division by a vanishing norm.
const normEps = 1e-12

// SE implements Structured Embedding. Each relation owns two dim x dim
// projection matrices: the left matrix projects heads, the right matrix
// projects tails. The score of (h, r, t) is the negative p-norm of the
// difference of the projections,
//
//	score = -|| L_r h - R_r t ||_p
//
// so a higher (less negative) score means a more plausible triple.
//
// Entities and both projection tables are initialized uniformly from
// [-6/sqrt(dim), +6/sqrt(dim)]; the projection tables are additionally
// unit-L2-normalized per relation right after sampling. Entity rows are
// normalized lazily per the forward constraint.
type SE struct {
	base

	left      *mat.Dense // (numRelations, dim*dim), row-major matrices
	right     *mat.Dense
	normOrder int
}

var _ Model = (*SE)(nil)

// SEOption configures a Structured Embedding model at construction.
type SEOption func(*SE)

// WithSEEntityTable supplies a pre-trained entity table of shape
// (numEntities, dim).
func WithSEEntityTable(t *mat.Dense) SEOption {
	return func(m *SE) { m.entities = t }
}

// WithSELeftTable supplies a pre-trained left projection table of shape
// (numRelations, dim*dim), each row a row-major dim x dim matrix.
func WithSELeftTable(t *mat.Dense) SEOption {
	return func(m *SE) { m.left = t }
}

// WithSERightTable supplies a pre-trained right projection table of shape
// (numRelations, dim*dim).
func WithSERightTable(t *mat.Dense) SEOption {
	return func(m *SE) { m.right = t }
}

// WithScoringNorm sets the p-norm order of the scoring function.
func WithScoringNorm(p int) SEOption {
	return func(m *SE) { m.normOrder = p }
}

// WithSELoss replaces the default margin ranking loss.
func WithSELoss(l RankingLoss) SEOption {
	return func(m *SE) { m.loss = l }
}

// NewSE creates an empty Structured Embedding model. Call InitializeEmpty
// before scoring or training.
func NewSE(numEntities, numRelations, dim int, seed int64, opts ...SEOption) (*SE, error) {
	b, err := newBase(numEntities, numRelations, dim, seed)
	if err != nil {
		return nil, err
	}
	m := &SE{base: b, normOrder: DefaultScoringNorm}
	for _, opt := range opts {
		opt(m)
	}
	if m.normOrder < 1 {
		return nil, fmt.Errorf("%w: scoring norm order %d (must be >= 1)", ErrConstruction, m.normOrder)
	}
	if err := checkTable(m.entities, numEntities, dim, "entity"); err != nil {
		return nil, err
	}
	if err := checkTable(m.left, numRelations, dim*dim, "left relation"); err != nil {
		return nil, err
	}
	if err := checkTable(m.right, numRelations, dim*dim, "right relation"); err != nil {
		return nil, err
	}
	return m, nil
}

// InitializeEmpty fills any unset table; populated tables are skipped.
func (m *SE) InitializeEmpty() error {
	bound := 6.0 / math.Sqrt(float64(m.dim))
	if m.entities == nil {
		m.entities = mat.NewDense(m.numEntities, m.dim, nil)
		uniformFill(m.entities, bound, m.rng)
	}
	if m.left == nil {
		m.left = mat.NewDense(m.numRelations, m.dim*m.dim, nil)
		uniformFill(m.left, bound, m.rng)
		normalizeRows(m.left)
	}
	if m.right == nil {
		m.right = mat.NewDense(m.numRelations, m.dim*m.dim, nil)
		uniformFill(m.right, bound, m.rng)
		normalizeRows(m.right)
	}
	return nil
}

// Clear discards all three tables and re-arms the forward constraint.
func (m *SE) Clear() {
	m.clearEntities()
	m.left = nil
	m.right = nil
}

// RelationEmbedding returns a copy of a relation's concatenated left and
// right projection matrices, row-major.
func (m *SE) RelationEmbedding(id int) []float64 {
	if m.left == nil || m.right == nil || id < 0 || id >= m.numRelations {
		return nil
	}
	out := make([]float64, 0, 2*m.dim*m.dim)
	out = append(out, m.left.RawRowView(id)...)
	out = append(out, m.right.RawRowView(id)...)
	return out
}

// ScoringNorm returns the p-norm order of the scoring function.
func (m *SE) ScoringNorm() int { return m.normOrder }

func (m *SE) ready() error {
	if m.entities == nil || m.left == nil || m.right == nil {
		return ErrUninitialized
	}
	return nil
}

// leftMatrix returns the left projection of relation r as a dim x dim view
// backed by the table row. Writes go through to the store.
func (m *SE) leftMatrix(r int) *mat.Dense {
	return mat.NewDense(m.dim, m.dim, m.left.RawRowView(r))
}

// rightMatrix returns the right projection of relation r as a view.
func (m *SE) rightMatrix(r int) *mat.Dense {
	return mat.NewDense(m.dim, m.dim, m.right.RawRowView(r))
}

// project computes the matrix-vector product M * v into dst.
func project(dst []float64, M mat.Matrix, v []float64) {
	out := mat.NewVecDense(len(dst), dst)
	out.MulVec(M, mat.NewVecDense(len(v), v))
}

// ForwardOWA scores one triple per batch row: the head is projected through
// the relation's left matrix, the tail through its right matrix, and the
// score is the negative p-norm of their difference.
func (m *SE) ForwardOWA(batch []triples.Triple) ([]float64, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.applyForwardConstraint()

	out := make([]float64, len(batch))
	ph := make([]float64, m.dim)
	pt := make([]float64, m.dim)
	for i, t := range batch {
		if err := m.checkTriple(t); err != nil {
			return nil, err
		}
		project(ph, m.leftMatrix(t.Relation), m.entities.RawRowView(t.Head))
		project(pt, m.rightMatrix(t.Relation), m.entities.RawRowView(t.Tail))
		floats.Sub(ph, pt) // ph now holds the difference
		out[i] = -floats.Norm(ph, float64(m.normOrder))
	}
	return out, nil
}

// ForwardCWA scores each (head, relation) pair against every entity as
// tail. The fixed head is projected once through the left matrix; all
// entities are projected through the right matrix in one matrix product and
// the subtraction broadcasts across the entity axis.
func (m *SE) ForwardCWA(batch []triples.Pair) (*mat.Dense, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.applyForwardConstraint()

	scores := mat.NewDense(len(batch), m.numEntities, nil)
	fixed := make([]float64, m.dim)
	diff := make([]float64, m.dim)
	var all mat.Dense // (numEntities, dim) projected candidates
	for i, p := range batch {
		if err := m.checkEntity(p.A); err != nil {
			return nil, err
		}
		if err := m.checkRelation(p.B); err != nil {
			return nil, err
		}
		project(fixed, m.leftMatrix(p.B), m.entities.RawRowView(p.A))
		all.Mul(m.entities, m.rightMatrix(p.B).T())

		row := scores.RawRowView(i)
		for j := 0; j < m.numEntities; j++ {
			floats.SubTo(diff, fixed, all.RawRowView(j))
			row[j] = -floats.Norm(diff, float64(m.normOrder))
		}
	}
	return scores, nil
}

// ForwardInverseCWA scores each (relation, tail) pair against every entity
// as head; the mirror image of ForwardCWA.
func (m *SE) ForwardInverseCWA(batch []triples.Pair) (*mat.Dense, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.applyForwardConstraint()

	scores := mat.NewDense(len(batch), m.numEntities, nil)
	fixed := make([]float64, m.dim)
	diff := make([]float64, m.dim)
	var all mat.Dense
	for i, p := range batch {
		if err := m.checkRelation(p.A); err != nil {
			return nil, err
		}
		if err := m.checkEntity(p.B); err != nil {
			return nil, err
		}
		project(fixed, m.rightMatrix(p.A), m.entities.RawRowView(p.B))
		all.Mul(m.entities, m.leftMatrix(p.A).T())

		row := scores.RawRowView(i)
		for j := 0; j < m.numEntities; j++ {
			floats.SubTo(diff, all.RawRowView(j), fixed)
			row[j] = -floats.Norm(diff, float64(m.normOrder))
		}
	}
	return scores, nil
}

// sePieces holds the per-triple quantities the gradient step needs,
// captured against the pre-update parameters.
type sePieces struct {
	score float64
	g     []float64 // d||d||_p / dd
	h, t  []float64 // entity row copies
	lTg   []float64 // L^T g
	rTg   []float64 // R^T g
}

// pieces scores one triple and captures its gradient building blocks.
func (m *SE) pieces(t triples.Triple) sePieces {
	d := m.dim
	L := m.leftMatrix(t.Relation)
	R := m.rightMatrix(t.Relation)

	p := sePieces{
		g:   make([]float64, d),
		h:   make([]float64, d),
		t:   make([]float64, d),
		lTg: make([]float64, d),
		rTg: make([]float64, d),
	}
	copy(p.h, m.entities.RawRowView(t.Head))
	copy(p.t, m.entities.RawRowView(t.Tail))

	diff := make([]float64, d)
	pt := make([]float64, d)
	project(diff, L, p.h)
	project(pt, R, p.t)
	floats.Sub(diff, pt)

	norm := floats.Norm(diff, float64(m.normOrder))
	p.score = -norm

	switch {
	case m.normOrder == 1:
		for k, v := range diff {
			switch {
			case v > 0:
				p.g[k] = 1
			case v < 0:
				p.g[k] = -1
			}
		}
	case m.normOrder == 2:
		if norm > normEps {
			for k, v := range diff {
				p.g[k] = v / norm
			}
		}
	default:
		// General p-norm gradient: sign(d_i) |d_i|^(p-1) / ||d||^(p-1).
		if norm > normEps {
			e := float64(m.normOrder) - 1
			for k, v := range diff {
				p.g[k] = math.Copysign(math.Pow(math.Abs(v), e), v) / math.Pow(norm, e)
			}
		}
	}

	project(p.lTg, L.T(), p.g)
	project(p.rTg, R.T(), p.g)
	return p
}

// Step performs one SGD update on a (positive, negative) pair. With
// d = L h - R t and g the norm gradient, the score derivatives are
//
//	ds/dh = -L^T g   ds/dL = -g h^T
//	ds/dt = +R^T g   ds/dR = +g t^T
//
// Both triples' pieces are captured before any parameter write so shared
// rows see both contributions of one consistent gradient step.
func (m *SE) Step(pos, neg triples.Triple, lr float64) (float64, error) {
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

	pp := m.pieces(pos)
	pn := m.pieces(neg)

	loss := m.loss.Pairwise(pp.score, pn.score)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, ErrNonFiniteLoss
	}

	dPos, dNeg := m.loss.Grad(pp.score, pn.score)
	if dPos == 0 && dNeg == 0 {
		return loss, nil
	}

	m.applyPair(pos, pp, dPos, lr)
	m.applyPair(neg, pn, dNeg, lr)
	return loss, nil
}

// applyPair applies one triple's share of the gradient step with loss
// coefficient c (theta -= lr * c * ds/dtheta).
func (m *SE) applyPair(t triples.Triple, p sePieces, c, lr float64) {
	if c == 0 {
		return
	}
	// Entities: ds/dh = -L^T g, ds/dt = +R^T g.
	floats.AddScaled(m.entities.RawRowView(t.Head), lr*c, p.lTg)
	floats.AddScaled(m.entities.RawRowView(t.Tail), -lr*c, p.rTg)

	// Projections: rank-one updates against the captured entity rows.
	gv := mat.NewVecDense(m.dim, p.g)
	L := m.leftMatrix(t.Relation)
	L.RankOne(L, lr*c, gv, mat.NewVecDense(m.dim, p.h))
	R := m.rightMatrix(t.Relation)
	R.RankOne(R, -lr*c, gv, mat.NewVecDense(m.dim, p.t))
}
