// Package apperr defines the request-level error taxonomy shared by all services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected request.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthorization
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a rejection that is safe to show to the client.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Authorization rejects a request with a missing or wrong role or session.
func Authorization(msg string) error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// Validation rejects malformed input before any write.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotFound rejects a reference to an unknown entity.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Conflict rejects an operation that is invalid in the current state.
func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Wrap attaches a cause to a classified error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal if it is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
