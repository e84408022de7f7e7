package domain

import (
	"errors"
	"fmt"
)

// ErrEmptySeries is returned when a source has no samples to analyze.
var ErrEmptySeries = errors.New("empty series")

// MalformedSampleError reports a record whose date or level cannot be interpreted.
type MalformedSampleError struct {
	Record int // 1-based record number, 0 when unknown
	Field  string
	Value  string
	Err    error
}

func (e *MalformedSampleError) Error() string {
	if e.Record > 0 {
		return fmt.Sprintf("malformed sample at record %d: %s %q: %v", e.Record, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("malformed sample: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedSampleError) Unwrap() error { return e.Err }
