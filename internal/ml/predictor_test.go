package ml

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student-perf/internal/features"
)

func fixturePredictor(t *testing.T, metrics MetricsInterface) *Predictor {
	t.Helper()
	store, _ := trainFixture(t)
	p, err := NewPredictor(store, metrics)
	require.NoError(t, err)
	return p
}

func input(att, marks, internal float64) features.Input {
	return features.Input{
		Attendance:    features.Float(att),
		Marks:         features.Float(marks),
		InternalScore: features.Float(internal),
	}
}

func TestPredictZeroMarksHighInternal(t *testing.T) {
	p := fixturePredictor(t, nil)

	result, err := p.Predict(input(56, 0, 70))
	require.NoError(t, err)

	assert.Equal(t, 0, result.PredictedResult)
	assert.True(t, result.SuspiciousInput)
	assert.Contains(t, result.SuspiciousReasons, suspicionZeroMarks)
	assert.Equal(t, SuspicionNote, result.Notes)

	var reasons []string
	for _, r := range result.Explanation.TopReasons {
		reasons = append(reasons, r.Feature)
	}
	assert.Contains(t, reasons, "marks")
}

func TestPredictStrongStudent(t *testing.T) {
	p := fixturePredictor(t, nil)

	first, err := p.Predict(input(92, 88, 84))
	require.NoError(t, err)
	second, err := p.Predict(input(92, 88, 84))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.False(t, first.SuspiciousInput)
	assert.Empty(t, first.SuspiciousReasons)
	assert.Empty(t, first.Notes)
	assert.Equal(t, 1, first.PredictedResult)
}

func TestPredictLabelMatchesThreshold(t *testing.T) {
	p := fixturePredictor(t, nil)
	threshold, _ := p.Threshold()

	for att := 0.0; att <= 100; att += 25 {
		for marks := 0.0; marks <= 100; marks += 25 {
			result, err := p.Predict(input(att, marks, marks))
			require.NoError(t, err)

			assert.GreaterOrEqual(t, result.Probability, 0.0)
			assert.LessOrEqual(t, result.Probability, 1.0)
			assert.Equal(t, threshold, result.ThresholdUsed)
			assert.Equal(t, result.Probability >= threshold, result.PredictedResult == 1)
		}
	}
}

func TestPredictIdempotentJSON(t *testing.T) {
	p := fixturePredictor(t, nil)

	a, err := p.Predict(input(70, 55, 62))
	require.NoError(t, err)
	b, err := p.Predict(input(70, 55, 62))
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestPredictInvalidInput(t *testing.T) {
	metrics := &MockMetrics{}
	p := fixturePredictor(t, metrics)

	tests := []struct {
		name  string
		in    features.Input
		field string
	}{
		{"attendance above range", input(120, 50, 50), "attendance"},
		{"marks below range", input(50, -1, 50), "marks"},
		{"missing internal score", features.Input{Attendance: features.Float(50), Marks: features.Float(50)}, "internal_score"},
		{"final exam above range", features.Input{
			Attendance:     features.Float(50),
			Marks:          features.Float(50),
			InternalScore:  features.Float(50),
			FinalExamScore: features.Float(101),
		}, "final_exam_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Predict(tt.in)

			var invalid *features.InvalidInputError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Equal(t, tt.field, invalid.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
	assert.Equal(t, len(tests), metrics.InvalidInputs())
	assert.Equal(t, 0, metrics.Predictions())
}

func TestPredictEchoesFinalExam(t *testing.T) {
	p := fixturePredictor(t, nil)

	in := input(80, 75, 70)
	in.FinalExamScore = features.Float(10)
	result, err := p.Predict(in)
	require.NoError(t, err)

	require.NotNil(t, result.FinalExamScore)
	assert.Equal(t, 10.0, *result.FinalExamScore)
	assert.True(t, result.SuspiciousInput)
	assert.Contains(t, result.SuspiciousReasons, suspicionLowFinalExam)
}

func TestPredictSuggestionBounds(t *testing.T) {
	p := fixturePredictor(t, nil)

	cases := []features.Input{
		input(95, 92, 98),
		input(40, 30, 20),
		input(100, 100, 100),
		input(60, 59, 61),
	}
	for _, in := range cases {
		result, err := p.Predict(in)
		require.NoError(t, err)

		for _, s := range result.Feedback {
			idx := features.Index(s.Feature)
			require.GreaterOrEqual(t, idx, 0)

			assert.GreaterOrEqual(t, s.EstimatedProbabilityGain, 0.0)
			assert.LessOrEqual(t, s.EstimatedProbabilityGain, 1-result.Probability+1e-12)
			assert.True(t, strings.HasPrefix(s.SuggestedChange, "Increase "+s.Feature+" by "))

			arrow := strings.LastIndex(s.SuggestedChange, "→ ")
			require.Greater(t, arrow, 0)
			target, err := strconv.Atoi(strings.TrimSuffix(s.SuggestedChange[arrow+len("→ "):], ")"))
			require.NoError(t, err)
			assert.LessOrEqual(t, target, 100)
		}
	}

	full, err := p.Predict(input(100, 100, 100))
	require.NoError(t, err)
	assert.Empty(t, full.Feedback, "nothing to suggest at the ceiling")
}

func TestPredictBatch(t *testing.T) {
	p := fixturePredictor(t, nil)
	sid, cid := int64(7), int64(3)

	items := []BatchItem{
		{StudentID: &sid, CourseID: &cid, Input: input(92, 88, 84)},
		{Input: input(56, 0, 70)},
	}
	out, err := p.PredictBatch(items)
	require.NoError(t, err)
	require.Equal(t, 2, out.Total)
	require.Len(t, out.Predictions, 2)

	assert.Equal(t, &sid, out.Predictions[0].StudentID)
	assert.Equal(t, &cid, out.Predictions[0].CourseID)
	assert.Nil(t, out.Predictions[1].StudentID)

	single, err := p.Predict(input(56, 0, 70))
	require.NoError(t, err)
	assert.Equal(t, single.Probability, out.Predictions[1].Probability)
	assert.Equal(t, single.Explanation, out.Predictions[1].Explanation)
}

func TestPredictBatchFailsWhole(t *testing.T) {
	metrics := &MockMetrics{}
	p := fixturePredictor(t, metrics)

	items := []BatchItem{
		{Input: input(80, 70, 75)},
		{Input: input(120, 70, 75)},
		{Input: input(60, 60, 60)},
	}
	out, err := p.PredictBatch(items)
	assert.Nil(t, out)

	var invalid *features.InvalidInputError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	require.NotNil(t, invalid.Item)
	assert.Equal(t, 1, *invalid.Item)
	assert.Contains(t, err.Error(), "invalid batch item 1")
	assert.Contains(t, err.Error(), "attendance")
	assert.Equal(t, 0, metrics.Predictions(), "no partial results")
}

func TestPredictExplanationFallsBackToContributions(t *testing.T) {
	store, _ := trainFixture(t)
	model, meta, err := store.Load()
	require.NoError(t, err)

	meta.PermutationImportance = nil
	p := NewPredictorFromModel(model, meta, 0.6, "default", nil)

	result, err := p.Predict(input(70, 40, 55))
	require.NoError(t, err)

	for _, r := range result.Explanation.TopReasons {
		assert.InDelta(t, abs(r.Contribution), result.Explanation.FeatureImportances[r.Feature], 1e-12)
	}
	assert.Len(t, result.Explanation.TopReasons, 3)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
