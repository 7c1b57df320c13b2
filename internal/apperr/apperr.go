// Package apperr defines the error taxonomy shared by the ballotbox services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	// KindInternal marks unexpected storage or programming failures.
	KindInternal Kind = iota
	// KindValidation marks missing or malformed input.
	KindValidation
	// KindUnauthorized marks a missing or invalid credential.
	KindUnauthorized
	// KindConflict marks a duplicate vote or duplicate registration.
	KindConflict
	// KindNotFound marks a reference to a record that does not exist.
	KindNotFound
	// KindUpstream marks a failed or timed out call to an external provider.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// Error carries a kind, a stable machine code, a human message and an optional cause.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the stable machine-readable code.
func (e *Error) Code() string {
	return e.code
}

// Message reports the human-readable message.
func (e *Error) Message() string {
	return e.message
}

// New constructs an Error without a cause.
func New(kind Kind, code, message string) error {
	return &Error{kind: kind, code: code, message: message}
}

// Wrap constructs an Error that keeps cause in its chain.
func Wrap(kind Kind, code, message string, cause error) error {
	return &Error{kind: kind, code: code, message: message, err: cause}
}

func Validation(code, message string) error {
	return New(KindValidation, code, message)
}

func Unauthorized(code, message string) error {
	return New(KindUnauthorized, code, message)
}

func Conflict(code, message string) error {
	return New(KindConflict, code, message)
}

func NotFound(code, message string) error {
	return New(KindNotFound, code, message)
}

func Upstream(code, message string, cause error) error {
	return Wrap(KindUpstream, code, message, cause)
}

func Internal(code string, cause error) error {
	return Wrap(KindInternal, code, "internal error", cause)
}

// As extracts the first *Error from the chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the kind of err, defaulting to KindInternal for foreign errors.
func KindOf(err error) Kind {
	if target, ok := As(err); ok {
		return target.kind
	}
	return KindInternal
}

// IsKind reports whether err carries the provided kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
