package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by the services wraps exactly one of them,
// so callers can branch with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// Error carries a kind, a user-facing message and optional per-field details
type Error struct {
	Kind    error
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced entity that does not exist
func NotFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

// Validation reports a missing or malformed field
func Validation(format string, args ...interface{}) error {
	return newError(ErrValidation, format, args...)
}

// ValidationFields reports several field failures at once
func ValidationFields(message string, fields map[string]string) error {
	return &Error{Kind: ErrValidation, Message: message, Fields: fields}
}

// Forbidden reports an authenticated actor acting outside its rights
func Forbidden(format string, args ...interface{}) error {
	return newError(ErrForbidden, format, args...)
}

// Unauthorized reports a missing, invalid or expired credential
func Unauthorized(format string, args ...interface{}) error {
	return newError(ErrUnauthorized, format, args...)
}

// Conflict reports a uniqueness or referential conflict
func Conflict(format string, args ...interface{}) error {
	return newError(ErrConflict, format, args...)
}

// Is reports whether err belongs to the given kind
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// FieldsOf returns the per-field messages of a validation error, if any
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// HTTPStatus maps an error kind to a transport status. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
