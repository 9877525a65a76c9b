package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// xavierUniformFill fills t with Xavier-uniform samples: draws from
// [-b, +b] with b = sqrt(6 / (rows + cols)).
func xavierUniformFill(t *mat.Dense, rng *rand.Rand) {
	r, c := t.Dims()
	bound := math.Sqrt(6.0 / float64(r+c))
	uniformFill(t, bound, rng)
}

// uniformFill fills t with samples from [-bound, +bound].
func uniformFill(t *mat.Dense, bound float64, rng *rand.Rand) {
	data := t.RawMatrix().Data
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * bound
	}
}

// normalizeRows scales every row of t to unit L2 norm in place. Zero rows
// are left untouched.
func normalizeRows(t *mat.Dense) {
	r, _ := t.Dims()
	for i := 0; i < r; i++ {
		row := t.RawRowView(i)
		n := floats.Norm(row, 2)
		if n > 0 {
			floats.Scale(1/n, row)
		}
	}
}
