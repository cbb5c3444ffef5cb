package storage

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"student-perf/internal/common"
	"student-perf/internal/features"
	"student-perf/internal/ml"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// csvRow is the on-disk enrollment layout. Fields are strings so blanks can
// be told apart from zeros.
type csvRow struct {
	StudentID      string `csv:"student_id"`
	CourseID       string `csv:"course_id"`
	Attendance     string `csv:"attendance"`
	Marks          string `csv:"marks"`
	InternalScore  string `csv:"internal_score"`
	FinalExamScore string `csv:"final_exam_score"`
	Result         string `csv:"result"`
}

// ImportSummary counts the outcome of an import.
type ImportSummary struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// ImportCSV reads enrollments with a header row and upserts them in one
// transaction. Rows that fail to parse or validate are skipped and logged.
func (s *Store) ImportCSV(r io.Reader) (ImportSummary, error) {
	var rows []*csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return ImportSummary{}, fmt.Errorf("parse enrollment csv: %w", err)
	}

	var summary ImportSummary
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for i, row := range rows {
			e, err := row.enrollment()
			if err != nil {
				log.Warn().Err(err).Int("row", i+1).Msg("Skipping enrollment row")
				summary.Skipped++
				continue
			}

			created, err := put(tx, e)
			if err != nil {
				return err
			}
			if created {
				summary.Imported++
			} else {
				summary.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}

	log.Info().
		Int("imported", summary.Imported).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Msg("Enrollment import complete")

	return summary, nil
}

// ExportCSV writes every training-ready enrollment (known features and result)
// with a header row and returns the number of rows written.
func (s *Store) ExportCSV(w io.Writer) (int, error) {
	enrollments, err := s.Enrollments()
	if err != nil {
		return 0, err
	}

	rows := make([]*csvRow, 0, len(enrollments))
	for _, e := range enrollments {
		if !e.complete() || e.Result == nil {
			continue
		}
		rows = append(rows, rowFrom(e))
	}

	if len(rows) == 0 {
		return 0, ErrNoTrainingData
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, fmt.Errorf("write enrollment csv: %w", err)
	}

	return len(rows), nil
}

// trainingRow is the layout of a standalone training file. Extra columns are
// ignored.
type trainingRow struct {
	Attendance    string `csv:"attendance"`
	Marks         string `csv:"marks"`
	InternalScore string `csv:"internal_score"`
	Result        string `csv:"result"`
}

// ReadTrainingCSV parses a training file with a header row. Blank cells become
// missing values; any unparseable cell fails the whole read with its row number.
func ReadTrainingCSV(r io.Reader) ([]ml.Sample, error) {
	var rows []*trainingRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse training csv: %w", err)
	}

	samples := make([]ml.Sample, 0, len(rows))
	for i, row := range rows {
		var s ml.Sample
		var err error

		for _, f := range []struct {
			name string
			raw  string
			dst  **float64
		}{
			{common.FeatureAttendance, row.Attendance, &s.Attendance},
			{common.FeatureMarks, row.Marks, &s.Marks},
			{common.FeatureInternalScore, row.InternalScore, &s.InternalScore},
		} {
			if *f.dst, err = parseOptionalFloat(f.raw); err != nil {
				return nil, fmt.Errorf("row %d: invalid %s %q", i+1, f.name, f.raw)
			}
		}

		if raw := strings.TrimSpace(row.Result); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v != float64(int(v)) {
				return nil, fmt.Errorf("row %d: invalid result %q", i+1, row.Result)
			}
			result := int(v)
			s.Result = &result
		}

		samples = append(samples, s)
	}

	return samples, nil
}

func (r *csvRow) enrollment() (Enrollment, error) {
	var e Enrollment
	var err error

	if e.StudentID, err = strconv.ParseInt(strings.TrimSpace(r.StudentID), 10, 64); err != nil {
		return Enrollment{}, fmt.Errorf("invalid student_id %q", r.StudentID)
	}
	if e.CourseID, err = strconv.ParseInt(strings.TrimSpace(r.CourseID), 10, 64); err != nil {
		return Enrollment{}, fmt.Errorf("invalid course_id %q", r.CourseID)
	}

	fields := []struct {
		name string
		raw  string
		dst  **float64
	}{
		{common.FeatureAttendance, r.Attendance, &e.Attendance},
		{common.FeatureMarks, r.Marks, &e.Marks},
		{common.FeatureInternalScore, r.InternalScore, &e.InternalScore},
		{common.FeatureFinalExamScore, r.FinalExamScore, &e.FinalExamScore},
	}
	for _, f := range fields {
		v, err := parseOptionalFloat(f.raw)
		if err != nil {
			return Enrollment{}, fmt.Errorf("invalid %s %q", f.name, f.raw)
		}
		if v != nil {
			if _, err := features.Validate(f.name, v); err != nil {
				return Enrollment{}, err
			}
		}
		*f.dst = v
	}

	if raw := strings.TrimSpace(r.Result); raw != "" {
		result, err := strconv.Atoi(raw)
		if err != nil || (result != 0 && result != 1) {
			return Enrollment{}, fmt.Errorf("invalid result %q", r.Result)
		}
		e.Result = &result
	}

	return e, nil
}

func rowFrom(e Enrollment) *csvRow {
	row := &csvRow{
		StudentID:      strconv.FormatInt(e.StudentID, 10),
		CourseID:       strconv.FormatInt(e.CourseID, 10),
		Attendance:     formatOptionalFloat(e.Attendance),
		Marks:          formatOptionalFloat(e.Marks),
		InternalScore:  formatOptionalFloat(e.InternalScore),
		FinalExamScore: formatOptionalFloat(e.FinalExamScore),
	}
	if e.Result != nil {
		row.Result = strconv.Itoa(*e.Result)
	}
	return row
}

func parseOptionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
