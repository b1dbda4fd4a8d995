// Package apperr defines the error classes shared by every domain package.
//
// Domain errors wrap exactly one class sentinel so that transport code can map
// them with errors.Is without knowing the concrete type.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error classes.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a classified, user-facing error.
type Error struct {
	class   error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.class }

// Validation returns a user-correctable error.
func Validation(msg string) error {
	return &Error{class: ErrValidation, Message: msg}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) error {
	return &Error{class: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns an error for a missing (or not owned) resource.
func NotFound(resource, id string) error {
	if id == "" {
		return &Error{class: ErrNotFound, Message: resource + " not found"}
	}
	return &Error{class: ErrNotFound, Message: fmt.Sprintf("%s with id %s not found", resource, id)}
}

// Conflict returns an error for a request that clashes with current state.
func Conflict(msg string) error {
	return &Error{class: ErrConflict, Message: msg}
}

// Unauthorized returns an authentication failure.
func Unauthorized(msg string) error {
	return &Error{class: ErrUnauthorized, Message: msg}
}

// Code returns the machine-readable code for err, or INTERNAL_ERROR when err
// does not belong to any class.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	default:
		return "INTERNAL_ERROR"
	}
}
