package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies reconciliation failures.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "InvalidInput"
	KindInvalidAmount      ErrorKind = "InvalidAmount"
	KindNotYetConfirmed    ErrorKind = "NotYetConfirmed"
	KindOrderNotFound      ErrorKind = "OrderNotFound"
	KindAmbiguousOrder     ErrorKind = "AmbiguousOrder"
	KindConflict           ErrorKind = "Conflict"
	KindUnexpectedEvent    ErrorKind = "UnexpectedEvent"
	KindIdentifierMismatch ErrorKind = "IdentifierMismatch"
	KindWrongToken         ErrorKind = "WrongToken"
	KindAmountMismatch     ErrorKind = "AmountMismatch"
	KindMalformedLog       ErrorKind = "MalformedLog"
)

// Retryable reports whether the caller may retry the same request later.
func (k ErrorKind) Retryable() bool {
	return k == KindNotYetConfirmed
}

// Error is a classified failure with structured details (expected vs. received values).
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches sentinel errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// NewError builds a classified error. details may be nil.
func NewError(kind ErrorKind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// KindOf returns the kind of a classified error anywhere in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrInvalidAmount      = &Error{Kind: KindInvalidAmount}
	ErrNotYetConfirmed    = &Error{Kind: KindNotYetConfirmed}
	ErrOrderNotFound      = &Error{Kind: KindOrderNotFound}
	ErrAmbiguousOrder     = &Error{Kind: KindAmbiguousOrder}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrUnexpectedEvent    = &Error{Kind: KindUnexpectedEvent}
	ErrIdentifierMismatch = &Error{Kind: KindIdentifierMismatch}
	ErrWrongToken         = &Error{Kind: KindWrongToken}
	ErrAmountMismatch     = &Error{Kind: KindAmountMismatch}
	ErrMalformedLog       = &Error{Kind: KindMalformedLog}
)
