package ml

import "fmt"

// ModelNotFoundError is returned when no trained model artifact exists at Path.
// Callers should treat it as "service not yet trained".
type ModelNotFoundError struct {
	Path string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found at %s, train the model first", e.Path)
}

// InsufficientDataError is returned when fewer than Required labeled samples are available.
type InsufficientDataError struct {
	Count    int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for training: need at least %d samples, got %d", e.Required, e.Count)
}

// SingleClassError is returned when every labeled sample carries the same result.
type SingleClassError struct {
	Class int
	Count int
}

func (e *SingleClassError) Error() string {
	return fmt.Sprintf("training requires at least two classes in the target variable, all %d samples have result=%d", e.Count, e.Class)
}

// InvalidThresholdError is returned when a decision threshold outside (0,1) is written.
type InvalidThresholdError struct {
	Value float64
}

func (e *InvalidThresholdError) Error() string {
	return fmt.Sprintf("threshold must be between 0 and 1 (exclusive), got %g", e.Value)
}
