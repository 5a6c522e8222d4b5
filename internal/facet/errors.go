package facet

import (
	"errors"
	"fmt"
)

// ErrMissingTargetCell indicates a facet was evaluated without a target cell.
var ErrMissingTargetCell = errors.New("target cell not set")

// ErrMissingRequiredField indicates a variant field needed for evaluation is unset.
var ErrMissingRequiredField = errors.New("required field not set")

// ErrInvalidExpression indicates a regular expression failed to compile or
// exceeded its match budget.
var ErrInvalidExpression = errors.New("invalid expression")

// ErrInvalidLengthBounds indicates maxLength is less than minLength.
var ErrInvalidLengthBounds = errors.New("max length less than min length")

// ErrUnknownFacetType indicates a record carries an unrecognized type.
var ErrUnknownFacetType = errors.New("unknown facet type")

// ErrCyclicReference indicates formula resolution ran into a reference cycle
// or exhausted its budget.
var ErrCyclicReference = errors.New("cyclic reference")

// Error describes an authoring error of a single facet.
type Error struct {
	Type  Type
	Field string // "points", "value", "formulas", ...
	Cell  string
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Type)
	if e.Cell != "" {
		msg += fmt.Sprintf(" at %s", e.Cell)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(f Facet, field string, err error) *Error {
	e := &Error{Type: f.Type(), Field: field, Err: err}
	if c := f.Base().TargetCell; c != nil {
		e.Cell = c.String()
	}
	return e
}
