package features

import (
	"errors"
	"math"
	"strings"
	"testing"

	"student-perf/internal/common"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		feature string
		value   *float64
		want    float64
		reason  string
	}{
		{"lower bound", common.FeatureAttendance, Float(0), 0, ""},
		{"upper bound", common.FeatureMarks, Float(100), 100, ""},
		{"fractional", common.FeatureInternalScore, Float(72.5), 72.5, ""},
		{"final exam accepted", common.FeatureFinalExamScore, Float(15), 15, ""},
		{"missing", common.FeatureMarks, nil, 0, ReasonMissing},
		{"nan", common.FeatureAttendance, Float(math.NaN()), 0, ReasonNotNumeric},
		{"inf", common.FeatureAttendance, Float(math.Inf(1)), 0, ReasonNotNumeric},
		{"above range", common.FeatureAttendance, Float(120), 0, ReasonOutOfRange},
		{"below range", common.FeatureMarks, Float(-5), 0, ReasonOutOfRange},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Validate(tc.feature, tc.value)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tc.want {
					t.Errorf("expected %v, got %v", tc.want, got)
				}
				return
			}

			var invalid *InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
			if invalid.Reason != tc.reason {
				t.Errorf("expected reason %s, got %s", tc.reason, invalid.Reason)
			}
			if !strings.Contains(err.Error(), tc.feature) {
				t.Errorf("error %q does not name the field %s", err.Error(), tc.feature)
			}
		})
	}
}

func TestValidate_UnknownFeature(t *testing.T) {
	if _, err := Validate("shoe_size", Float(10)); err == nil {
		t.Error("expected error for unknown feature")
	}
}

func TestInvalidInputError_Message(t *testing.T) {
	_, err := Validate(common.FeatureAttendance, Float(120))
	if err == nil {
		t.Fatal("expected error")
	}

	want := "'attendance' must be between 0 and 100 (received 120)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	var invalid *InvalidInputError
	errors.As(err, &invalid)
	item := invalid.InItem(3)
	if !strings.HasPrefix(item.Error(), "invalid batch item 3: ") {
		t.Errorf("unexpected batch message %q", item.Error())
	}
	if invalid.Item != nil {
		t.Error("InItem must not mutate the original error")
	}
}

func TestValidateInput(t *testing.T) {
	in := Input{
		Attendance:    Float(56),
		Marks:         Float(0),
		InternalScore: Float(70),
	}

	v, err := ValidateInput(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.FinalExamScore != nil {
		t.Error("expected final exam score to stay absent")
	}

	vec := v.Vector()
	if len(vec) != Count {
		t.Fatalf("expected %d features, got %d", Count, len(vec))
	}
	if vec[0] != 56 || vec[1] != 0 || vec[2] != 70 {
		t.Errorf("vector out of canonical order: %v", vec)
	}

	in.FinalExamScore = Float(101)
	_, err = ValidateInput(in)
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) || invalid.Field != common.FeatureFinalExamScore {
		t.Errorf("expected final_exam_score validation error, got %v", err)
	}
}

func TestIndex(t *testing.T) {
	for i, name := range Names {
		if Index(name) != i {
			t.Errorf("expected %s at %d", name, i)
		}
	}
	if Index(common.FeatureFinalExamScore) != -1 {
		t.Error("final exam score must not be part of the feature vector")
	}
}
