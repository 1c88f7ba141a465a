package datasource

import (
	"errors"
	"fmt"
)

// ErrTableNotFound reports a query against a table the source does not have.
var ErrTableNotFound = errors.New("table not found")

// ErrColumnNotFound reports a filter or projection naming an unknown column.
var ErrColumnNotFound = errors.New("column not found")

// TableNotFoundError carries the offending table name.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q not found", e.Table)
}

func (e *TableNotFoundError) Unwrap() error { return ErrTableNotFound }

// ColumnNotFoundError carries the offending table and column names.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
}

func (e *ColumnNotFoundError) Unwrap() error { return ErrColumnNotFound }
