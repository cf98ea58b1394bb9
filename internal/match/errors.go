package match

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroVector is returned when an embedding has zero magnitude and
	// cosine distance is undefined for it.
	ErrZeroVector = errors.New("embedding has zero magnitude")

	// ErrUnknownMetric is returned for metric names other than cosine and l2.
	ErrUnknownMetric = errors.New("unknown distance metric")
)

// DimensionMismatchError indicates two embeddings of different lengths.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// MetricMismatchError indicates a stored embedding that was produced under a
// different model or metric than the active configuration. Comparing such
// vectors would yield meaningless distances.
type MetricMismatchError struct {
	Field  string // "model" or "metric"
	Stored string
	Active string
}

func (e *MetricMismatchError) Error() string {
	return fmt.Sprintf("stored embedding %s %q does not match active %s %q",
		e.Field, e.Stored, e.Field, e.Active)
}
