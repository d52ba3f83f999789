package core

import (
	"errors"
	"fmt"
)

// Reason classifies why an input was rejected.
type Reason string

const (
	ReasonDuplicateName     Reason = "duplicate-name"
	ReasonInvalidCharacters Reason = "invalid-characters"
	ReasonOutOfRange        Reason = "out-of-range"
	ReasonNonNumeric        Reason = "non-numeric"
	ReasonRequired          Reason = "required"
	ReasonReservedName      Reason = "reserved-name"
)

// ErrValidation matches every *ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError is returned synchronously when an input is rejected.
type ValidationError struct {
	Field  string
	Reason Reason
	Value  string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field string, reason Reason, value string) error {
	return &ValidationError{Field: field, Reason: reason, Value: value}
}

// ReasonOf extracts the validation reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
