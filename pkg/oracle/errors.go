package oracle

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch marks a structurally invalid oracle result.
var ErrSchemaMismatch = errors.New("oracle result schema mismatch")

// ErrAllSamplesFailed marks a sampling round where no sample succeeded.
var ErrAllSamplesFailed = errors.New("all oracle samples failed")

// Error is a structured oracle failure.
type Error struct {
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Message != "" && e.Err != nil {
		return fmt.Sprintf("oracle %s %s: %s: %v", e.Provider, e.Operation, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("oracle %s %s: %v", e.Provider, e.Operation, e.Err)
	}
	return fmt.Sprintf("oracle %s %s: %s", e.Provider, e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an oracle error.
func NewError(provider, operation, message string, err error) *Error {
	return &Error{Provider: provider, Operation: operation, Message: message, Err: err}
}
