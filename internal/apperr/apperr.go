// Package apperr defines the error taxonomy shared by every component.
// Component boundaries convert raw errors into one of these kinds before
// they cross a tool or channel boundary, matching the teacher's convention
// of never letting a provider/tool throw an unstructured error.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it
// (e.g. the tool surface deciding whether to retry or refuse).
type Kind string

const (
	Configuration Kind = "configuration"
	Transport     Kind = "transport"
	Upstream      Kind = "upstream"
	Timeout       Kind = "timeout"
	Validation    Kind = "validation"
	Conflict      Kind = "conflict"
	Policy        Kind = "policy"
	NotFound      Kind = "not_found"
	Internal      Kind = "internal"
)

// Error is a structured application error carrying a Kind alongside the
// usual message/wrapped-error pair.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a new Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a Kind and message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
