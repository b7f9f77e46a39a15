// Package apperr defines the structured errors returned by the card engine.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers.
type Code string

const (
	Validation Code = "VALIDATION_ERROR"
	Constraint Code = "CONSTRAINT_VIOLATION"
	NotFound   Code = "NOT_FOUND"
	Unexpected Code = "UNEXPECTED_ERROR"
)

// Error carries a code and a human readable message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around err.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err is, or wraps, an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// From returns err as an *Error, wrapping anything else as Unexpected.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(Unexpected, "unexpected error", err)
}
