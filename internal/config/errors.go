package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks every validation failure so callers can map
// configuration problems to a distinct exit path.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidConfig) match.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

func invalidField(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
