// Package errors provides the structured error type used across fastsearchd.
//
// Every error that can cross the RPC boundary is constructed here so that
// internal/rpc has a single place to map a Go error to a JSON-RPC error
// object.
package errors

import "fmt"

// Kind identifies the category of a fastsearchd error. Kinds are carried as
// data.kind over JSON-RPC and are the unit callers branch on, not the
// message string.
type Kind string

const (
	KindEmptyQuery           Kind = "EmptyQuery"
	KindInvalidArgument      Kind = "InvalidArgument"
	KindDimensionMismatch    Kind = "DimensionMismatch"
	KindAmbiguousSource      Kind = "AmbiguousSource"
	KindModelDisabled        Kind = "ModelDisabled"
	KindMemoryBudgetExceeded Kind = "MemoryBudgetExceeded"
	KindModelLoadFailed      Kind = "ModelLoadFailed"
	KindStoreUnavailable     Kind = "StoreUnavailable"
	KindDaemonBusy           Kind = "DaemonBusy"
	KindProtocolError        Kind = "ProtocolError"
)

// Error is the structured error type returned by store, engine, and manager
// operations.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Candidates lists alternative matches for KindAmbiguousSource errors.
	Candidates []string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether a client may retry the request that produced
// this error, per the error handling policy table.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindDaemonBusy, KindModelLoadFailed, KindMemoryBudgetExceeded:
		return true
	default:
		return false
	}
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// WithCandidates attaches ambiguous-match candidates and returns the error
// for chaining.
func (e *Error) WithCandidates(candidates []string) *Error {
	e.Candidates = candidates
	return e
}

// GetKind extracts the Kind from err, or "" if err is not a *Error.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a *Error with Retryable() true.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable()
	}
	return false
}
