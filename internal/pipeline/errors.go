package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmptyInputError is returned when a batch has no content (no non-blank
// lines, or an empty single-entry submission).
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "input is empty"
}

// FormatError is returned before parsing when a bulk upload is not CSV.
type FormatError struct {
	Filename    string
	ContentType string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported file %q (content type %q): please upload a CSV file", e.Filename, e.ContentType)
}

// SchemaError is returned when the header lacks required columns. It is
// batch-fatal: no row is ingested.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// FieldTypeError reports a present value that does not match its field's
// type (non-numeric amount, unknown category, malformed card number, ...).
type FieldTypeError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q: %s (got %q)", e.Field, e.Reason, e.Value)
}

// RangeError reports a numeric value outside its allowed bounds.
type RangeError struct {
	Field string
	Value float64
	Bound string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("field %q: value %v out of range, want %s", e.Field, e.Value, e.Bound)
}

// RowError ties a row-level error to the 1-based line it came from.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the row error for API responses.
func (e *RowError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Line  int    `json:"line"`
		Error string `json:"error"`
	}{Line: e.Line, Error: e.Err.Error()})
}

// PipelineError is the terminal Failed state of a batch: the stage the batch
// was in when it failed and the underlying reason.
type PipelineError struct {
	BatchID string
	Stage   State
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("batch %s failed in state %s: %v", e.BatchID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
