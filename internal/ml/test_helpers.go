package ml

import (
	"math"
	"sync"

	"student-perf/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	invalidInputs    int
	suspiciousInputs int
	latencySum       float64
	accuracySum      float64
	modelAge         float64
	threshold        float64
	trainingRuns     int
	trainingSeconds  float64
	predictionScores []float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLInvalidInputsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidInputs++
}

func (m *MockMetrics) MLSuspiciousInputsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspiciousInputs++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLThresholdSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = v
}

func (m *MockMetrics) MLTrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingRuns++
}

func (m *MockMetrics) MLTrainingDurationObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingSeconds += v
}

func (m *MockMetrics) MLAccuracyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accuracySum += v
}

// Predictions returns the number of predictions counted.
func (m *MockMetrics) Predictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions
}

// InvalidInputs returns the number of rejected inputs counted.
func (m *MockMetrics) InvalidInputs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidInputs
}

// TrainingRuns returns the number of completed training runs counted.
func (m *MockMetrics) TrainingRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trainingRuns
}

// FixtureSamples returns a deterministic labeled grid used by tests across
// packages: attendance 35..95 step 10 crossed with a spread of marks, the
// internal score tracking marks and attendance, passing when both marks and
// attendance reach 60. Two hand-picked rows are appended.
func FixtureSamples() []Sample {
	var out []Sample
	for att := 35.0; att <= 95; att += 10 {
		for _, marks := range []float64{0, 20, 40, 60, 80, 95} {
			internal := math.Min(100, math.Max(0, marks+(att-50)*0.4))
			result := 0
			if marks >= 60 && att >= 60 {
				result = 1
			}
			out = append(out, Sample{
				Attendance:    features.Float(att),
				Marks:         features.Float(marks),
				InternalScore: features.Float(internal),
				Result:        intPtr(result),
			})
		}
	}

	out = append(out,
		Sample{Attendance: features.Float(56), Marks: features.Float(0), InternalScore: features.Float(70), Result: intPtr(0)},
		Sample{Attendance: features.Float(92), Marks: features.Float(88), InternalScore: features.Float(84), Result: intPtr(1)},
	)
	return out
}

func intPtr(v int) *int {
	return &v
}
