package ml

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"student-perf/internal/common"
	"student-perf/internal/features"
)

// Suggestion priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Largest increase suggested per feature.
var maxIncrease = map[string]float64{
	common.FeatureAttendance:    10,
	common.FeatureMarks:         15,
	common.FeatureInternalScore: 10,
}

var featureTips = map[string]string{
	common.FeatureMarks:         "Practice previous year papers, focus on weak chapters, get 1-on-1 tutoring.",
	common.FeatureAttendance:    "Attend more lectures and labs, attend office hours, increase attendance by up to +10%.",
	common.FeatureInternalScore: "Submit all assignments, improve assignment quality, discuss rubrics with teacher, up to +10 points.",
}

// Suggestion is one bounded what-if improvement.
type Suggestion struct {
	Feature                  string  `json:"feature"`
	CurrentValue             float64 `json:"current_value"`
	SuggestedChange          string  `json:"suggested_change"`
	EstimatedProbabilityGain float64 `json:"estimated_probability_gain"`
	NewProbabilityEstimate   float64 `json:"new_probability_estimate"`
	Priority                 string  `json:"priority"`
	Explanation              string  `json:"explanation"`
}

// Suggestions estimates, for every feature, the pass probability after raising
// it by its capped increase. The change is applied in log-odds space through
// the reference coefficients. Results are ordered by priority then gain.
func Suggestions(raw []float64, probability float64, meta *Metadata) []Suggestion {
	coefs, _, scale := referenceParams(meta)
	base := logit(probability)

	out := make([]Suggestion, 0, len(features.Names))
	for i, name := range features.Names {
		current := raw[i]
		delta := math.Min(maxIncrease[name], 100-current)
		if delta <= 0 {
			continue
		}

		s := scale[i]
		if s == 0 {
			s = 1
		}
		newProb := sigmoid(base + coefs[i]*delta/s)
		gain := math.Max(0, newProb-probability)

		out = append(out, Suggestion{
			Feature:                  name,
			CurrentValue:             current,
			SuggestedChange:          changeText(name, current, delta),
			EstimatedProbabilityGain: gain,
			NewProbabilityEstimate:   newProb,
			Priority:                 priorityFor(gain),
			Explanation:              featureTips[name],
		})
	}

	rank := map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}
	sort.SliceStable(out, func(a, b int) bool {
		if rank[out[a].Priority] != rank[out[b].Priority] {
			return rank[out[a].Priority] < rank[out[b].Priority]
		}
		return out[a].EstimatedProbabilityGain > out[b].EstimatedProbabilityGain
	})
	return out
}

func priorityFor(gain float64) string {
	switch {
	case gain < 0.005:
		return PriorityLow
	case gain < 0.10:
		return PriorityMedium
	default:
		return PriorityHigh
	}
}

func changeText(name string, current, delta float64) string {
	unit := " points"
	if name == common.FeatureAttendance {
		unit = "%"
	}
	return fmt.Sprintf("Increase %s by %d%s (%d → %d)",
		name, roundInt(delta), unit, roundInt(current), roundInt(current+delta))
}

func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}

// FeedbackParagraph assembles the narrative advice shown with a prediction.
func FeedbackParagraph(in features.Validated, probability float64, passed bool, suggestions []Suggestion, suspicion []string) string {
	var b strings.Builder

	status := "fail"
	if passed {
		status = "pass"
	}
	fmt.Fprintf(&b, "Based on your current inputs, you are predicted to %s with an estimated probability of %.1f%%. ", status, probability*100)
	if passed {
		b.WriteString("This is a strong position; to increase robustness further, focus on one or two targeted improvements. ")
	} else {
		b.WriteString("You're close to your goal, and small, focused changes can meaningfully raise your chances. ")
	}

	if in.Attendance < 60 {
		b.WriteString("Your attendance is lower than ideal. Prioritize attending lectures and labs consistently, " +
			"use office hours when stuck, and plan a weekly schedule that reduces missed sessions. ")
	}
	if in.Marks < 60 {
		b.WriteString("Your current marks indicate room for improvement. Practice past papers, focus on weaker topics first, " +
			"and consider short, regular tutoring or peer study to build speed and accuracy. ")
	}
	if in.InternalScore < 60 {
		b.WriteString("Internal scores matter: submit all assignments on time, align your work with the rubric, and request feedback early to iterate. ")
	}

	if len(suggestions) > 0 {
		top := suggestions[0]
		fmt.Fprintf(&b, "A practical next step: %s. This is estimated to increase your pass probability by %.1f%% (to about %.1f%%). ",
			strings.ToLower(top.SuggestedChange), top.EstimatedProbabilityGain*100, top.NewProbabilityEstimate*100)
	}

	if len(suspicion) > 0 {
		b.WriteString("Note: some inputs look unusual. Please double-check data entry to ensure the advice fits your situation. ")
	}

	b.WriteString("Stick to small, consistent improvements each week; track progress and reassess. " +
		"If you need structure, combine a fixed study routine (e.g., 30-45 minutes daily) with targeted practice and timely assignment submissions.")

	return b.String()
}

// referenceParams returns the coefficients and scaler of the reference fit in
// feature order. Missing entries default to a zero coefficient and an identity scaler.
func referenceParams(meta *Metadata) (coefs, mean, scale []float64) {
	n := len(features.Names)
	coefs = make([]float64, n)
	mean = make([]float64, n)
	scale = make([]float64, n)
	for i, name := range features.Names {
		scale[i] = 1
		if meta == nil {
			continue
		}
		coefs[i] = meta.Coefficients[name]
		if meta.Scaler != nil {
			if i < len(meta.Scaler.Mean) {
				mean[i] = meta.Scaler.Mean[i]
			}
			if i < len(meta.Scaler.Scale) && meta.Scaler.Scale[i] != 0 {
				scale[i] = meta.Scaler.Scale[i]
			}
		}
	}
	return coefs, mean, scale
}
