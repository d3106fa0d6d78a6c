package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration error so callers can
// detect the fatal startup class with errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// Error reports a rejected configuration value.
type Error struct {
	Field  string
	Value  any
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *Error) Unwrap() error { return ErrInvalidConfig }

// Invalid builds an *Error.
func Invalid(field string, value any, reason string) error {
	return &Error{Field: field, Value: value, Reason: reason}
}
