// Package apperr holds the pipeline's error taxonomy. Every error here is fatal
// to the run that raised it.
package apperr

import (
	"fmt"
	"strings"
)

// SchemaError indicates required input columns are missing.
type SchemaError struct {
	Source  string
	Missing []string
}

func (e *SchemaError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("schema error: %s is missing required columns: %s", e.Source, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("schema error: missing required columns: %s", strings.Join(e.Missing, ", "))
}

// DataParseError indicates a malformed date or numeric field. Row is the
// 1-based data row, header excluded.
type DataParseError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *DataParseError) Error() string {
	return fmt.Sprintf("parse error: row %d column %s value %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *DataParseError) Unwrap() error { return e.Err }

// InsufficientDataError indicates fewer rows than requested clusters.
type InsufficientDataError struct {
	Rows     int
	Clusters int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows for %d clusters", e.Rows, e.Clusters)
}

// ConnectionError indicates the relational sink is unreachable.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConstraintError indicates a duplicate-key insert on a path without upsert.
type ConstraintError struct {
	Table string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s: %v", e.Table, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// ValidationError reports an invalid configuration value or a table that does
// not match its declared schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
