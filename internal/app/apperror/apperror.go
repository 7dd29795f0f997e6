// Package apperror defines the error kinds the request pipeline maps to
// HTTP status codes. Handlers return these; the views translate them.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP response.
type Kind int

const (
	// BadRequest covers schema violations, malformed payloads and
	// handler-level validation failures.
	BadRequest Kind = iota
	// PermissionDenied covers every authorization failure.
	PermissionDenied
	// AuthFailure covers failed ticket verification.
	AuthFailure
	// NotFound covers requests for models that do not exist.
	NotFound
	// Internal covers everything the caller cannot fix.
	Internal
)

// HTTPStatus maps a kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case BadRequest, NotFound:
		return http.StatusBadRequest
	case PermissionDenied:
		return http.StatusForbidden
	case AuthFailure:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Type is the machine-readable tag written into the response body.
func (k Kind) Type() string {
	switch k {
	case BadRequest:
		return "invalid_request"
	case PermissionDenied:
		return "permission_denied"
	case AuthFailure:
		return "auth_failure"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified error with a caller-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e Error) Unwrap() error { return e.Err }

// New builds a classified error with a formatted message.
func New(kind Kind, format string, args ...any) Error {
	return Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) Error {
	return Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err, defaulting to Internal.
func KindOf(err error) Kind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message returns the caller-facing message of err. Internal errors are
// masked; their details belong in the log, not the response.
func Message(err error) string {
	var e Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Msg
	}
	return "Internal server error"
}
