package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"student-perf/internal/features"
)

func TestDetectSuspicion(t *testing.T) {
	final := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		in   features.Validated
		want []string
	}{
		{"consistent", features.Validated{Attendance: 80, Marks: 70, InternalScore: 65}, nil},
		{"zero marks high internal", features.Validated{Attendance: 56, Marks: 0, InternalScore: 70}, []string{suspicionZeroMarks}},
		{"zero marks low internal", features.Validated{Attendance: 56, Marks: 0, InternalScore: 59}, nil},
		{"low attendance high marks", features.Validated{Attendance: 39, Marks: 80, InternalScore: 70}, []string{suspicionLowAttendance}},
		{"attendance at boundary", features.Validated{Attendance: 40, Marks: 90, InternalScore: 70}, nil},
		{"low final exam", features.Validated{Attendance: 70, Marks: 70, InternalScore: 70, FinalExamScore: final(19)}, []string{suspicionLowFinalExam}},
		{"final exam at boundary", features.Validated{Attendance: 70, Marks: 70, InternalScore: 70, FinalExamScore: final(20)}, nil},
		{
			"several rules",
			features.Validated{Attendance: 10, Marks: 85, InternalScore: 90, FinalExamScore: final(5)},
			[]string{suspicionLowAttendance, suspicionLowFinalExam},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectSuspicion(tt.in))
		})
	}
}
