// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrNoContacts is returned when a CSV upload yields no row with a phone number.
var ErrNoContacts = errors.New("no valid contacts found in CSV")

// InputShapeError reports a malformed or incomplete batch request.
type InputShapeError struct {
	Reason string
}

func (e *InputShapeError) Error() string {
	return e.Reason
}

func NewInputShape(format string, a ...any) error {
	return &InputShapeError{Reason: fmt.Sprintf(format, a...)}
}

// CSVParseError wraps a tokenizer or encoding failure of an uploaded CSV.
type CSVParseError struct {
	Err error
}

func (e *CSVParseError) Error() string {
	return fmt.Sprintf("failed to parse CSV: %v", e.Err)
}

func (e *CSVParseError) Unwrap() error { return e.Err }

func NewCSVParse(err error) error {
	return &CSVParseError{Err: err}
}

// TemplateBindingError is raised when a template cannot be bound to a contact.
// Field is empty when the template itself is malformed.
type TemplateBindingError struct {
	Field  string
	Reason string
}

func (e *TemplateBindingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("missing template field %q", e.Field)
	}
	return fmt.Sprintf("invalid template: %s", e.Reason)
}

func NewMissingField(field string) error {
	return &TemplateBindingError{Field: field}
}

func NewMalformedTemplate(reason string) error {
	return &TemplateBindingError{Reason: reason}
}

// PhoneValidationError carries the reason recorded on a failed outcome.
type PhoneValidationError struct {
	Reason string
	Err    error
}

func (e *PhoneValidationError) Error() string {
	return e.Reason
}

func (e *PhoneValidationError) Unwrap() error { return e.Err }

// StoreFailure wraps any error coming back from the durable store.
type StoreFailure struct {
	Op  string
	Err error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() error { return e.Err }

func NewStoreFailure(op string, err error) error {
	return &StoreFailure{Op: op, Err: err}
}

func IsStoreFailure(err error) bool {
	var sf *StoreFailure
	return errors.As(err, &sf)
}

// IsInputError reports whether err should be answered with a client error.
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	var shape *InputShapeError
	var parse *CSVParseError
	return errors.As(err, &shape) || errors.As(err, &parse) || errors.Is(err, ErrNoContacts)
}
