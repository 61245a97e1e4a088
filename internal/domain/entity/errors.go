package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by lookups that expect a row to exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate signals a unique constraint violation, e.g. a second seen
	// item for the same (interest, item id).
	ErrDuplicate = errors.New("duplicate entity")

	// ErrInvalid matches every *ValidationError under errors.Is.
	ErrInvalid = errors.New("invalid entity")
)

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is lets callers test for any validation failure with errors.Is(err, ErrInvalid).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}
