package storage

import (
	"student-perf/internal/ml"

	"github.com/rs/zerolog/log"
)

// complete reports whether every model feature is known.
func (e Enrollment) complete() bool {
	return e.Attendance != nil && e.Marks != nil && e.InternalScore != nil
}

// TrainingSamples returns every enrollment with a known result. Missing
// features are left nil for the trainer to impute.
func (s *Store) TrainingSamples() ([]ml.Sample, error) {
	enrollments, err := s.Enrollments()
	if err != nil {
		return nil, err
	}

	var samples []ml.Sample
	for _, e := range enrollments {
		if e.Result == nil {
			continue
		}
		samples = append(samples, ml.Sample{
			Attendance:    e.Attendance,
			Marks:         e.Marks,
			InternalScore: e.InternalScore,
			Result:        e.Result,
		})
	}

	if len(samples) == 0 {
		return nil, ErrNoTrainingData
	}

	log.Debug().Int("samples", len(samples)).Int("enrollments", len(enrollments)).Msg("Loaded training samples")
	return samples, nil
}

// BatchItems returns every enrollment with complete features as batch
// prediction items. It returns an empty slice when none qualify.
func (s *Store) BatchItems() ([]ml.BatchItem, error) {
	enrollments, err := s.Enrollments()
	if err != nil {
		return nil, err
	}

	items := make([]ml.BatchItem, 0, len(enrollments))
	for _, e := range enrollments {
		if !e.complete() {
			continue
		}
		studentID, courseID := e.StudentID, e.CourseID
		item := ml.BatchItem{StudentID: &studentID, CourseID: &courseID}
		item.Attendance = e.Attendance
		item.Marks = e.Marks
		item.InternalScore = e.InternalScore
		item.FinalExamScore = e.FinalExamScore
		items = append(items, item)
	}

	return items, nil
}
