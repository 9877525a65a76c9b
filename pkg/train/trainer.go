// Package train runs the single-threaded SGD training loop over paired
// positive and negative triples. One step fully completes (forward, loss,
// gradient, optimizer update) before the next starts; any step error aborts
// the whole run with no retry and no partial results.
package train

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cnclabs/kge/pkg/model"
	"github.com/cnclabs/kge/pkg/triples"
)

// ErrMismatched is returned when the positive and negative triple arrays
// differ in length.
var ErrMismatched = errors.New("train: positive and negative triples must be index-aligned")

// DefaultLearningRate is used when the trainer's learning rate is unset.
const DefaultLearningRate = 0.01

// Trainer drives per-instance SGD over a fixed instance order.
type Trainer struct {
	// LearningRate for the plain SGD update. Defaults to
	// DefaultLearningRate when zero.
	LearningRate float64

	// NumEpochs is the number of passes over the training instances. Zero
	// epochs returns immediately with zero accumulated loss.
	NumEpochs int

	// Seed for the run-level shuffle of the instance order. The order is
	// permuted once at the start of the run and reused across epochs.
	Seed int64

	// RenormalizeOncePerRun keeps the forward constraint armed across
	// optimizer steps, so entities are normalized only before the first
	// forward pass of the run. The default (false) re-arms the constraint
	// after every step, keeping entities unit-norm for every scoring call.
	RenormalizeOncePerRun bool

	// Logger receives per-epoch progress. Nil uses slog.Default.
	Logger *slog.Logger
}

// Result reports accumulated training loss and per-epoch timing. Timing is
// informational only and never drives control flow.
type Result struct {
	EpochLosses    []float64
	EpochDurations []time.Duration
	TotalLoss      float64
}

// Train runs the loop: for each epoch, for each instance in the shuffled
// order, one loss computation and one SGD step on the (positive, negative)
// pair at that index.
func (t *Trainer) Train(m model.Model, pos, neg []triples.Triple) (*Result, error) {
	if len(pos) != len(neg) {
		return nil, fmt.Errorf("%w: %d positives, %d negatives", ErrMismatched, len(pos), len(neg))
	}

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lr := t.LearningRate
	if lr == 0 {
		lr = DefaultLearningRate
	}

	// One permutation for the whole run; epochs reuse the same order.
	rng := rand.New(rand.NewSource(t.Seed))
	order := rng.Perm(len(pos))

	res := &Result{
		EpochLosses:    make([]float64, 0, t.NumEpochs),
		EpochDurations: make([]time.Duration, 0, t.NumEpochs),
	}

	for epoch := 0; epoch < t.NumEpochs; epoch++ {
		start := time.Now()
		epochLoss := 0.0

		for _, i := range order {
			loss, err := m.Step(pos[i], neg[i], lr)
			if err != nil {
				return nil, fmt.Errorf("train: epoch %d instance %d: %w", epoch, i, err)
			}
			if !t.RenormalizeOncePerRun {
				// The update invalidated the entity norms.
				m.RearmConstraint()
			}
			epochLoss += loss
		}

		took := time.Since(start)
		res.EpochLosses = append(res.EpochLosses, epochLoss)
		res.EpochDurations = append(res.EpochDurations, took)
		res.TotalLoss += epochLoss
		logger.Info("epoch finished",
			"epoch", epoch,
			"loss", epochLoss,
			"seconds", took.Seconds(),
		)
	}

	return res, nil
}
