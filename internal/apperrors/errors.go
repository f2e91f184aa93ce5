package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by who is at fault and whether it may be retried.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindAuthorization    Kind = "AUTHORIZATION"
	KindTransientStorage Kind = "TRANSIENT_STORAGE"
	KindInternal         Kind = "INTERNAL"
)

// Error is the application error carried across package boundaries.
// Two errors are considered the same (errors.Is) when their codes match,
// so a sentinel keeps matching after it has been wrapped or re-created
// with a different message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func NewValidation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func NewNotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func NewConflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func NewAuthorization(code, message string) *Error {
	return New(KindAuthorization, code, message)
}

// NewTransient marks err as a storage failure that may succeed on retry
// (serialization conflicts, deadlocks, dropped connections).
func NewTransient(message string, err error) *Error {
	return &Error{Kind: KindTransientStorage, Code: "storage_unavailable", Message: message, Err: err}
}

func NewInternal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: message, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is eligible for automatic retry.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransientStorage
}
