package features

import (
	"fmt"
	"strconv"
)

// Reasons an input is rejected.
const (
	ReasonMissing    = "missing"
	ReasonNotNumeric = "not_numeric"
	ReasonOutOfRange = "out_of_range"
)

// InvalidInputError reports a user-correctable validation failure. Field names the
// offending input; Item is set when the input belongs to a batch.
type InvalidInputError struct {
	Field  string
	Reason string
	Value  float64
	Min    float64
	Max    float64
	Item   *int
}

func (e *InvalidInputError) Error() string {
	var msg string
	switch e.Reason {
	case ReasonMissing:
		msg = fmt.Sprintf("'%s' is required", e.Field)
	case ReasonNotNumeric:
		msg = fmt.Sprintf("'%s' must be a number", e.Field)
	default:
		msg = fmt.Sprintf("'%s' must be between %s and %s (received %s)",
			e.Field, formatNumber(e.Min), formatNumber(e.Max), formatNumber(e.Value))
	}

	if e.Item != nil {
		return fmt.Sprintf("invalid batch item %d: %s", *e.Item, msg)
	}
	return msg
}

// InItem returns a copy of e attributed to batch item idx.
func (e *InvalidInputError) InItem(idx int) *InvalidInputError {
	cp := *e
	cp.Item = &idx
	return &cp
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
