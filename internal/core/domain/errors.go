package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures by what the caller should do next.
type ErrorKind int

const (
	// KindRetriable is a transient store fault; the identical call may be retried.
	KindRetriable ErrorKind = iota
	// KindNonRetriable is a malformed request or a store fault not known to be transient.
	KindNonRetriable
	// KindResourceAlreadyExists means a uniqueness guard failed.
	KindResourceAlreadyExists
	// KindInconsistentState means a transaction guard failed. Re-read before retrying.
	KindInconsistentState
	// KindCapacityExceeded means the requested delta would leave [0, max].
	KindCapacityExceeded
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetriable:
		return "retriable"
	case KindNonRetriable:
		return "non-retriable"
	case KindResourceAlreadyExists:
		return "resource already exists"
	case KindInconsistentState:
		return "inconsistent state"
	case KindCapacityExceeded:
		return "capacity exceeded"
	}
	return "unknown"
}

// Error is the typed error surfaced by the engine.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func NewError(kind ErrorKind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInconsistentState) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrRetriable             = &Error{Kind: KindRetriable}
	ErrNonRetriable          = &Error{Kind: KindNonRetriable}
	ErrResourceAlreadyExists = &Error{Kind: KindResourceAlreadyExists}
	ErrInconsistentState     = &Error{Kind: KindInconsistentState}
	ErrCapacityExceeded      = &Error{Kind: KindCapacityExceeded}
)

// KindOf returns the kind of the first *Error in err's chain. Untyped errors are non-retriable.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNonRetriable
}

// IsRetriable reports whether err may be retried unchanged.
func IsRetriable(err error) bool {
	return err != nil && KindOf(err) == KindRetriable
}
