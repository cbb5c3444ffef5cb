// Package features defines the canonical model inputs of the student performance
// predictor: their order, their valid ranges and the validation applied to every
// value that reaches training or inference.
package features

import (
	"fmt"
	"math"

	"student-perf/internal/common"
)

// Names is the ordered feature vector layout. Every positional vector in the
// system (coefficients, scaler mean/scale, raw inputs) follows this order.
var Names = []string{
	common.FeatureAttendance,
	common.FeatureMarks,
	common.FeatureInternalScore,
}

// Count is the length of a feature vector.
const Count = 3

// Bounds is the inclusive valid range of an input.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

var bounds = map[string]Bounds{
	common.FeatureAttendance:     {Min: 0, Max: 100},
	common.FeatureMarks:          {Min: 0, Max: 100},
	common.FeatureInternalScore:  {Min: 0, Max: 100},
	common.FeatureFinalExamScore: {Min: 0, Max: 100},
}

// BoundsFor returns the valid range of a named input.
func BoundsFor(name string) (Bounds, bool) {
	b, ok := bounds[name]
	return b, ok
}

// Index returns the position of name in Names, or -1.
func Index(name string) int {
	for i, n := range Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Validate checks a single input and returns its value.
// A nil value, a NaN/Inf or a value outside the input's bounds fails with *InvalidInputError.
func Validate(name string, value *float64) (float64, error) {
	b, ok := bounds[name]
	if !ok {
		return 0, fmt.Errorf("unknown feature %q", name)
	}

	if value == nil {
		return 0, &InvalidInputError{Field: name, Reason: ReasonMissing, Min: b.Min, Max: b.Max}
	}

	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InvalidInputError{Field: name, Reason: ReasonNotNumeric, Min: b.Min, Max: b.Max}
	}

	if v < b.Min || v > b.Max {
		return 0, &InvalidInputError{Field: name, Reason: ReasonOutOfRange, Value: v, Min: b.Min, Max: b.Max}
	}

	return v, nil
}

// Input is one set of raw student signals. Nil pointers are missing values.
type Input struct {
	Attendance     *float64 `json:"attendance"`
	Marks          *float64 `json:"marks"`
	InternalScore  *float64 `json:"internal_score"`
	FinalExamScore *float64 `json:"final_exam_score,omitempty"`
}

// Validated holds an Input after every present field has passed Validate.
type Validated struct {
	Attendance     float64
	Marks          float64
	InternalScore  float64
	FinalExamScore *float64
}

// Vector returns the model feature vector in Names order.
func (v Validated) Vector() []float64 {
	return []float64{v.Attendance, v.Marks, v.InternalScore}
}

// ValidateInput validates the three model features and, when present, the final exam score.
func ValidateInput(in Input) (Validated, error) {
	var out Validated
	var err error

	if out.Attendance, err = Validate(common.FeatureAttendance, in.Attendance); err != nil {
		return Validated{}, err
	}
	if out.Marks, err = Validate(common.FeatureMarks, in.Marks); err != nil {
		return Validated{}, err
	}
	if out.InternalScore, err = Validate(common.FeatureInternalScore, in.InternalScore); err != nil {
		return Validated{}, err
	}

	if in.FinalExamScore != nil {
		final, err := Validate(common.FeatureFinalExamScore, in.FinalExamScore)
		if err != nil {
			return Validated{}, err
		}
		out.FinalExamScore = &final
	}

	return out, nil
}

// Float is a convenience for building Inputs from literals.
func Float(v float64) *float64 {
	return &v
}
