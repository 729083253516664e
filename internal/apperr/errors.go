// Package apperr holds the error taxonomy shared by the domain packages.
// The HTTP layer maps these to status codes; packages wrap them with %w.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failure")
	ErrUpstream     = errors.New("upstream failure")
)

// ConflictError reports which unique field already exists.
// Field is "email", "username" or "both".
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s already registered", e.Field)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Upstream(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, what, err)
}
