package score

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	fv, err := Aggregate([]float64{1.0, 0.0, 0.3})
	require.NoError(t, err)

	assert.Equal(t, 1.0, fv.MaxScore)
	assert.InDelta(t, 0.4333, fv.MeanScore, 1e-4)
	assert.Equal(t, 1, fv.ContradictionCount)
}

func TestAggregate_ThresholdIsStrict(t *testing.T) {
	fv, err := Aggregate([]float64{0.7})
	require.NoError(t, err)
	assert.Equal(t, 0, fv.ContradictionCount)

	fv, err = Aggregate([]float64{0.8, 0.8, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 2, fv.ContradictionCount)
	assert.Equal(t, 0.8, fv.MaxScore)
}

func TestAggregate_AllNeutral(t *testing.T) {
	fv, err := Aggregate([]float64{0.3, 0.3, 0.3, 0.3, 0.3})
	require.NoError(t, err)

	assert.Equal(t, 0.3, fv.MaxScore)
	assert.InDelta(t, 0.3, fv.MeanScore, 1e-12)
	assert.Equal(t, 0, fv.ContradictionCount)
}

func TestAggregate_Empty(t *testing.T) {
	_, err := Aggregate(nil)
	assert.True(t, errors.Is(err, ErrNoScores))

	_, err = Aggregate([]float64{})
	assert.ErrorIs(t, err, ErrNoScores)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	in := []float64{0.3, 1.0, 0.0}
	_, err := Aggregate(in)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 1.0, 0.0}, in)
}
