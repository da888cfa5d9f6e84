// Package errors defines the error taxonomy shared by the search engine and
// its transports. Every failure maps onto one of a small set of sentinel
// errors so callers can branch with errors.Is without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSchema covers unknown fields, type mismatches, and malformed mappings.
	ErrSchema = errors.New("schema violation")
	// ErrNotFound covers indices and document IDs that are absent where
	// required to exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when creating an index whose name is taken.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidInput covers malformed requests at the transport boundary.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal covers unexpected failures (snapshot I/O, storage).
	ErrInternal = errors.New("internal error")
)

// Error pairs a sentinel with a human-readable message.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Schemaf builds an ErrSchema error with a formatted message.
func Schemaf(format string, args ...any) error {
	return &Error{Err: ErrSchema, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds an ErrNotFound error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &Error{Err: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Duplicatef builds an ErrDuplicate error with a formatted message.
func Duplicatef(format string, args ...any) error {
	return &Error{Err: ErrDuplicate, Message: fmt.Sprintf(format, args...)}
}

// Invalidf builds an ErrInvalidInput error with a formatted message.
func Invalidf(format string, args ...any) error {
	return &Error{Err: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Internalf builds an ErrInternal error with a formatted message.
func Internalf(format string, args ...any) error {
	return &Error{Err: ErrInternal, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatusCode maps an engine error onto the HTTP status the server layer
// should respond with.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrSchema):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
