package ml

import "student-perf/internal/features"

const (
	suspicionZeroMarks     = "Marks are zero while internal score is high; please verify scores."
	suspicionLowAttendance = "Attendance is very low compared to high marks. Double-check attendance entry."
	suspicionLowFinalExam  = "Final exam score is low despite high overall marks; confirm final exam data."

	// SuspicionNote accompanies any flagged prediction.
	SuspicionNote = "Inputs inconsistent: please verify values (e.g., zero marks with high internal score)."
)

// DetectSuspicion returns a warning for every internally inconsistent
// combination of inputs. It never changes a prediction.
func DetectSuspicion(in features.Validated) []string {
	var notes []string

	if in.Marks == 0 && in.InternalScore >= 60 {
		notes = append(notes, suspicionZeroMarks)
	}
	if in.Attendance < 40 && in.Marks >= 80 {
		notes = append(notes, suspicionLowAttendance)
	}
	if in.FinalExamScore != nil && *in.FinalExamScore < 20 && in.Marks >= 70 {
		notes = append(notes, suspicionLowFinalExam)
	}

	return notes
}
