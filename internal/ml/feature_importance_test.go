package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student-perf/internal/features"
)

func TestNormalizeImportances(t *testing.T) {
	out := NormalizeImportances([]float64{0.2, -0.1, 0.1})
	assert.InDeltaSlice(t, []float64{0.5, -0.25, 0.25}, out, 1e-12)

	var total float64
	for _, v := range out {
		total += math.Abs(v)
	}
	assert.InDelta(t, 1.0, total, 1e-12)

	zero := []float64{0, 0, 0}
	assert.Equal(t, zero, NormalizeImportances(zero))
}

func TestPermutationImportanceDeterministic(t *testing.T) {
	samples := FixtureSamples()
	x, _, err := imputeFeatures(samples)
	require.NoError(t, err)
	y := make([]float64, len(samples))
	for i, s := range samples {
		y[i] = float64(*s.Result)
	}
	model, err := NewPipeline().Fit(x, y)
	require.NoError(t, err)

	config := PermutationConfig{Repeats: 20, Seed: 42}
	first, err := PermutationImportance(model, x, y, config)
	require.NoError(t, err)
	second, err := PermutationImportance(model, x, y, config)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Greater(t, first[1], 0.0, "shuffling marks must hurt accuracy")

	// The input matrix is left untouched.
	again, _, err := imputeFeatures(samples)
	require.NoError(t, err)
	assert.Equal(t, again.RawMatrix().Data, x.RawMatrix().Data)
}

func TestPermutationImportanceErrors(t *testing.T) {
	samples := FixtureSamples()
	x, _, err := imputeFeatures(samples)
	require.NoError(t, err)
	y := make([]float64, len(samples))

	_, err = PermutationImportance(nil, x, y, PermutationConfig{Repeats: 1})
	assert.Error(t, err)

	_, err = PermutationImportance(&LinearModel{}, x, y, PermutationConfig{Repeats: 0})
	assert.Error(t, err)
}

func TestFeatureImportancesFallsBackToZero(t *testing.T) {
	samples := FixtureSamples()
	x, _, err := imputeFeatures(samples)
	require.NoError(t, err)

	out := featureImportances(nil, x, make([]float64, len(samples)), features.Names, PermutationConfig{Repeats: 20, Seed: 42})
	require.Len(t, out, len(features.Names))
	for _, name := range features.Names {
		assert.Equal(t, 0.0, out[name])
	}
}
