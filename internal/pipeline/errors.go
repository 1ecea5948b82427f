// Package pipeline orchestrates the batch stages and defines the error
// taxonomy every stage reports through.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// MissingSourceError indicates an input file or required upstream table is
// absent. Fatal for the stage; nothing is written.
type MissingSourceError struct {
	Source string
	Err    error
}

func (e *MissingSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("missing source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("missing source %s", e.Source)
}

func (e *MissingSourceError) Unwrap() error { return e.Err }

// SchemaMismatchError indicates a source file lacks required columns.
// Fatal at load time, before any write.
type SchemaMismatchError struct {
	Source  string
	Columns []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("source %s missing required columns: %s",
		e.Source, strings.Join(e.Columns, ", "))
}

// DegenerateInputError indicates a stage received zero rows matching its
// filter. Downstream callers can detect it and report "no data" instead of
// failing on an empty table.
type DegenerateInputError struct {
	Stage  string
	Reason string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%s: degenerate input: %s", e.Stage, e.Reason)
}

// IsMissingSource reports whether any error in the chain is a MissingSourceError.
func IsMissingSource(err error) bool {
	var t *MissingSourceError
	return errors.As(err, &t)
}

// IsSchemaMismatch reports whether any error in the chain is a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var t *SchemaMismatchError
	return errors.As(err, &t)
}

// IsDegenerateInput reports whether any error in the chain is a DegenerateInputError.
func IsDegenerateInput(err error) bool {
	var t *DegenerateInputError
	return errors.As(err, &t)
}
