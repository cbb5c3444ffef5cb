package ml

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitSigmoid(t *testing.T) {
	scores := []float64{-3, -2, -1.5, -1, -0.5, 0.5, 1, 1.5, 2, 3}
	y := []float64{0, 0, 0, 1, 0, 1, 0, 1, 1, 1}

	sig, err := FitSigmoid(scores, y)
	require.NoError(t, err)

	assert.Less(t, sig.A, 0.0, "probability must increase with the score")
	prev := 0.0
	for _, s := range scores {
		p := sig.Probability(s)
		assert.Greater(t, p, prev)
		assert.Less(t, p, 1.0)
		prev = p
	}
}

func TestFitSigmoidErrors(t *testing.T) {
	_, err := FitSigmoid(nil, nil)
	assert.Error(t, err)

	_, err = FitSigmoid([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestFitCalibratedUsesFolds(t *testing.T) {
	samples := FixtureSamples()
	x, _, err := imputeFeatures(samples)
	require.NoError(t, err)
	y := make([]float64, len(samples))
	for i, s := range samples {
		y[i] = float64(*s.Result)
	}

	model, err := FitCalibrated(context.Background(), NewPipeline(), x, y, 5)
	require.NoError(t, err)
	assert.Len(t, model.Members, 5)

	probs := model.PredictProba(x)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	strong := model.Probability([]float64{95, 95, 100})
	weak := model.Probability([]float64{35, 0, 0})
	assert.Greater(t, strong, weak)
}

func TestFitCalibratedSmallMinority(t *testing.T) {
	samples := FixtureSamples()
	x, _, err := imputeFeatures(samples)
	require.NoError(t, err)

	// Keep a single positive row.
	y := make([]float64, len(samples))
	y[len(y)-1] = 1

	model, err := FitCalibrated(context.Background(), NewPipeline(), x, y, 5)
	require.NoError(t, err)
	assert.Len(t, model.Members, 1)

	// Three positives reduce the fold count to three.
	y[0], y[1] = 1, 1
	model, err = FitCalibrated(context.Background(), NewPipeline(), x, y, 5)
	require.NoError(t, err)
	assert.Len(t, model.Members, 3)
}

func TestCalibratedModelEmpty(t *testing.T) {
	var m CalibratedModel
	assert.True(t, math.IsNaN(m.Probability([]float64{1, 2, 3})))
}
