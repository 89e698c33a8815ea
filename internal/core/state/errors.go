// Package state defines domain-specific errors
package state

import (
	"errors"
	"fmt"
)

// ErrUnknownField marks an update that names a field the schema does not
// declare. Programmer error: it aborts the whole super-step.
var ErrUnknownField = errors.New("unknown state field")

// SchemaError reports which field of an update was not declared.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unknown state field %q", e.Field)
}

func (e *SchemaError) Unwrap() error { return ErrUnknownField }

// NotAListError reports a non-slice value handed to a list reducer.
type NotAListError struct {
	Value interface{}
}

func (e *NotAListError) Error() string {
	return fmt.Sprintf("append-with-reset expects a list, got %T", e.Value)
}
