package model

import (
	"fmt"
	"math"
)

// DefaultMargin is the default margin for the ranking loss.
const DefaultMargin = 1.0

// RankingLoss compares a positive triple's score against its paired negative
// triple's score. The target ordering is positive above negative.
type RankingLoss interface {
	// Pairwise returns the loss for one (positive, negative) score pair.
	Pairwise(pos, neg float64) float64
	// Grad returns the partial derivatives of the pairwise loss with
	// respect to the positive and negative scores.
	Grad(pos, neg float64) (dPos, dNeg float64)
}

// MarginRankingLoss penalizes pairs whose positive score does not exceed the
// negative score by at least Margin: max(0, margin - pos + neg).
type MarginRankingLoss struct {
	Margin float64
}

// NewMarginRankingLoss returns a margin ranking loss with the given margin.
func NewMarginRankingLoss(margin float64) MarginRankingLoss {
	return MarginRankingLoss{Margin: margin}
}

// Pairwise implements RankingLoss.
func (l MarginRankingLoss) Pairwise(pos, neg float64) float64 {
	return math.Max(0, l.Margin-pos+neg)
}

// Grad implements RankingLoss. The loss is inactive once the margin is
// satisfied, so both derivatives are zero there.
func (l MarginRankingLoss) Grad(pos, neg float64) (dPos, dNeg float64) {
	if l.Margin-pos+neg > 0 {
		return -1, 1
	}
	return 0, 0
}

// meanLoss reduces index-aligned score arrays to their mean pairwise loss.
func meanLoss(l RankingLoss, pos, neg []float64) (float64, error) {
	if len(pos) != len(neg) {
		return 0, fmt.Errorf("%w: %d positive vs %d negative scores", ErrShape, len(pos), len(neg))
	}
	if len(pos) == 0 {
		return 0, nil
	}
	sum := 0.0
	for i := range pos {
		sum += l.Pairwise(pos[i], neg[i])
	}
	return sum / float64(len(pos)), nil
}
