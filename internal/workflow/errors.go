package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies why a workflow command was refused.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindConflict           Kind = "CONFLICT"
)

// Error is the typed failure every workflow command returns when it refuses
// to act. No entity is mutated when an *Error is returned.
type Error struct {
	Kind   Kind
	Reason string

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Is matches the kind sentinels below, so errors.Is(err, ErrConflict) works
// for any conflict regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrConflict           = &Error{Kind: KindConflict}
)

// ErrAlreadySettled marks a PRECONDITION_FAILED refusal caused by a payment
// that was already applied, as opposed to one the project cannot accept.
var ErrAlreadySettled = errors.New("payment already settled")

// KindOf extracts the kind of a workflow error anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind, true
	}
	return "", false
}

func notFound(entity string, id int64) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf("%s %d not found", entity, id)}
}

func invalidTransition(entity string, from, to interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Reason: fmt.Sprintf("%s cannot move from %v to %v", entity, from, to)}
}

func unauthorized(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Reason: fmt.Sprintf(format, args...)}
}

func precondition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPreconditionFailed, Reason: fmt.Sprintf(format, args...)}
}

func alreadySettled(format string, args ...interface{}) *Error {
	e := precondition(format, args...)
	e.cause = ErrAlreadySettled
	return e
}

func conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Reason: fmt.Sprintf(format, args...)}
}
