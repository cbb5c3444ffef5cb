// Package storage provides persistent enrollment storage for the student
// performance service. It uses BoltDB as the underlying storage engine and
// feeds training rows and batch prediction items to the ML core.
//
// Enrollments are keyed by student and course so that re-importing a row
// updates the existing record instead of duplicating it.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	enrollmentsBucket = "enrollments" // Bucket name for enrollment records
	dbFileName        = "enrollments.db"
)

// ErrNoTrainingData is returned when no stored enrollment can be used for
// training or export.
var ErrNoTrainingData = errors.New("no training data available")

// Enrollment is one student's record in one course. Nil fields are unknown.
type Enrollment struct {
	StudentID      int64    `json:"student_id"`
	CourseID       int64    `json:"course_id"`
	Attendance     *float64 `json:"attendance"`
	Marks          *float64 `json:"marks"`
	InternalScore  *float64 `json:"internal_score"`
	FinalExamScore *float64 `json:"final_exam_score"`
	Result         *int     `json:"result"`
}

// Store provides persistent storage for enrollments using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the enrollment database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(enrollmentsBucket)); err != nil {
			return fmt.Errorf("create enrollments bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// PutEnrollment inserts or replaces the enrollment for its student and course.
// It reports whether a new record was created.
func (s *Store) PutEnrollment(e Enrollment) (bool, error) {
	created := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		created, err = put(tx, e)
		return err
	})

	return created, err
}

func put(tx *bbolt.Tx, e Enrollment) (bool, error) {
	b := tx.Bucket([]byte(enrollmentsBucket))

	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshal enrollment: %w", err)
	}

	key := enrollmentKey(e.StudentID, e.CourseID)
	created := b.Get(key) == nil
	return created, b.Put(key, data)
}

// GetEnrollment returns the enrollment for a student and course, or false if absent.
func (s *Store) GetEnrollment(studentID, courseID int64) (Enrollment, bool, error) {
	var e Enrollment
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(enrollmentsBucket)).Get(enrollmentKey(studentID, courseID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &e)
	})

	return e, found, err
}

// Enrollments returns every stored enrollment ordered by student then course.
func (s *Store) Enrollments() ([]Enrollment, error) {
	var out []Enrollment

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(enrollmentsBucket)).ForEach(func(k, v []byte) error {
			var e Enrollment
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal enrollment %s: %w", k, err)
			}
			out = append(out, e)
			return nil
		})
	})

	return out, err
}

// Count returns the number of stored enrollments.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(enrollmentsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// enrollmentKey orders keys numerically for non-negative ids.
func enrollmentKey(studentID, courseID int64) []byte {
	return []byte(fmt.Sprintf("%020d_%020d", studentID, courseID))
}
