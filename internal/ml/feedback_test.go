package ml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"student-perf/internal/features"
)

func testMetadata() *Metadata {
	return &Metadata{
		Coefficients: map[string]float64{"attendance": 0.8, "marks": 1.6, "internal_score": 0.1},
		Scaler:       &ScalerStats{Mean: []float64{65, 50, 50}, Scale: []float64{20, 30, 30}},
	}
}

func TestSuggestions(t *testing.T) {
	out := Suggestions([]float64{95, 50, 40}, 0.3, testMetadata())
	require.Len(t, out, 3)

	byFeature := map[string]Suggestion{}
	for _, s := range out {
		byFeature[s.Feature] = s
	}

	assert.Equal(t, "Increase attendance by 5% (95 → 100)", byFeature["attendance"].SuggestedChange)
	assert.Equal(t, "Increase marks by 15 points (50 → 65)", byFeature["marks"].SuggestedChange)
	assert.Equal(t, "Increase internal_score by 10 points (40 → 50)", byFeature["internal_score"].SuggestedChange)

	// marks: 15/30*1.6 = 0.8 log-odds
	want := sigmoid(logit(0.3) + 0.8)
	assert.InDelta(t, want, byFeature["marks"].NewProbabilityEstimate, 1e-12)
	assert.InDelta(t, want-0.3, byFeature["marks"].EstimatedProbabilityGain, 1e-12)
	assert.Equal(t, PriorityHigh, byFeature["marks"].Priority)

	assert.Equal(t, "marks", out[0].Feature, "highest gain first")
	assert.Equal(t, featureTips["marks"], byFeature["marks"].Explanation)
}

func TestSuggestionsOrdering(t *testing.T) {
	out := Suggestions([]float64{50, 50, 50}, 0.5, testMetadata())
	require.Len(t, out, 3)

	rank := map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if rank[prev.Priority] == rank[cur.Priority] {
			assert.GreaterOrEqual(t, prev.EstimatedProbabilityGain, cur.EstimatedProbabilityGain)
		} else {
			assert.Less(t, rank[prev.Priority], rank[cur.Priority])
		}
	}
}

func TestSuggestionsNegativeCoefficient(t *testing.T) {
	meta := testMetadata()
	meta.Coefficients["internal_score"] = -2

	for _, s := range Suggestions([]float64{50, 50, 50}, 0.4, meta) {
		if s.Feature == "internal_score" {
			assert.Equal(t, 0.0, s.EstimatedProbabilityGain)
			assert.Equal(t, PriorityLow, s.Priority)
		}
	}
}

func TestSuggestionsWithoutMetadata(t *testing.T) {
	out := Suggestions([]float64{50, 50, 50}, 0.4, &Metadata{})
	require.Len(t, out, 3)
	for _, s := range out {
		assert.InDelta(t, 0.0, s.EstimatedProbabilityGain, 1e-12)
		assert.Equal(t, PriorityLow, s.Priority)
	}
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, PriorityLow, priorityFor(0.004))
	assert.Equal(t, PriorityMedium, priorityFor(0.005))
	assert.Equal(t, PriorityMedium, priorityFor(0.099))
	assert.Equal(t, PriorityHigh, priorityFor(0.10))
}

func TestFeedbackParagraph(t *testing.T) {
	in := features.Validated{Attendance: 50, Marks: 45, InternalScore: 70}
	suggestions := Suggestions(in.Vector(), 0.3, testMetadata())

	text := FeedbackParagraph(in, 0.3, false, suggestions, []string{"x"})

	assert.True(t, strings.HasPrefix(text, "Based on your current inputs, you are predicted to fail with an estimated probability of 30.0%."))
	assert.Contains(t, text, "Your attendance is lower than ideal.")
	assert.Contains(t, text, "Your current marks indicate room for improvement.")
	assert.NotContains(t, text, "Internal scores matter")
	assert.Contains(t, text, "A practical next step: "+strings.ToLower(suggestions[0].SuggestedChange))
	assert.Contains(t, text, "Note: some inputs look unusual.")
	assert.True(t, strings.HasSuffix(text, "timely assignment submissions."))

	passed := FeedbackParagraph(features.Validated{Attendance: 90, Marks: 90, InternalScore: 90}, 0.95, true, nil, nil)
	assert.Contains(t, passed, "predicted to pass with an estimated probability of 95.0%")
	assert.NotContains(t, passed, "A practical next step")
	assert.NotContains(t, passed, "Note:")
	assert.Equal(t, passed, FeedbackParagraph(features.Validated{Attendance: 90, Marks: 90, InternalScore: 90}, 0.95, true, nil, nil))
}
