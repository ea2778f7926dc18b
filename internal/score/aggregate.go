// Package score reduces a variable-length set of contradiction scores to a
// fixed-size feature vector.
package score

import (
	"errors"

	"gonum.org/v1/gonum/floats"

	"github.com/ppiankov/fabula/internal/model"
)

// ErrNoScores is returned when there is nothing to aggregate
var ErrNoScores = errors.New("no scores to aggregate")

// Aggregate computes the maximum, the arithmetic mean and the number of
// scores strictly above model.ContradictionThreshold. A score of exactly 0.7
// is not counted.
func Aggregate(scores []float64) (model.FeatureVector, error) {
	if len(scores) == 0 {
		return model.FeatureVector{}, ErrNoScores
	}

	count := 0
	for _, s := range scores {
		if s > model.ContradictionThreshold {
			count++
		}
	}

	return model.FeatureVector{
		MaxScore:           floats.Max(scores),
		MeanScore:          floats.Sum(scores) / float64(len(scores)),
		ContradictionCount: count,
	}, nil
}
