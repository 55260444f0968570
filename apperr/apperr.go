package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error for transport mapping.
type Kind int

const (
	// KindValidation rejects bad input before any mutation.
	KindValidation Kind = iota
	// KindConflict marks a duplicate that the caller must be told about.
	KindConflict
	// KindNotFound marks a missing referenced entity.
	KindNotFound
)

// Error is a classified application error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Validation builds a validation error.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return is(err, KindConflict) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
