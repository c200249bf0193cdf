package dataspace

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running an actor.
//
// Runtime errors include:
//   - Script panics: an uncaught panic inside a script or boot function
//   - Facet not live: an endpoint added to a facet that is stopping
//   - Bad pattern: a malformed pattern passed to On/OnAsserted/...
//
// Script failures never escape the turn: they are logged, reported to the
// Tracer and terminate only the offending actor.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Actor names the actor that failed.
	Actor string

	// Details contains additional context.
	Details map[string]string

	// Cause is the underlying error, if the panic carried one.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeScriptPanic indicates a script panicked.
	ErrCodeScriptPanic RuntimeErrorCode = "SCRIPT_PANIC"

	// ErrCodeFacetNotLive indicates an operation on a facet that is no longer live.
	ErrCodeFacetNotLive RuntimeErrorCode = "FACET_NOT_LIVE"

	// ErrCodeBadPattern indicates a pattern failed to compile.
	ErrCodeBadPattern RuntimeErrorCode = "BAD_PATTERN"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Actor != "" {
		return fmt.Sprintf("%s: %s (actor=%s)", e.Code, e.Message, e.Actor)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsScriptPanic returns true if the error is a script panic.
// Uses errors.As to handle wrapped errors.
func IsScriptPanic(err error) bool {
	return hasCode(err, ErrCodeScriptPanic)
}

// IsFacetNotLive returns true if the error reports a dead facet.
func IsFacetNotLive(err error) bool {
	return hasCode(err, ErrCodeFacetNotLive)
}

// IsBadPattern returns true if the error reports a malformed pattern.
func IsBadPattern(err error) bool {
	return hasCode(err, ErrCodeBadPattern)
}

// NewScriptPanicError converts a recovered panic value into a RuntimeError.
// A recovered *RuntimeError is returned as is, stamped with the actor name.
func NewScriptPanicError(actor string, recovered any) *RuntimeError {
	switch v := recovered.(type) {
	case *RuntimeError:
		if v.Actor == "" {
			v.Actor = actor
		}
		return v
	case error:
		return &RuntimeError{
			Code:    ErrCodeScriptPanic,
			Message: v.Error(),
			Actor:   actor,
			Cause:   v,
		}
	default:
		return &RuntimeError{
			Code:    ErrCodeScriptPanic,
			Message: fmt.Sprint(v),
			Actor:   actor,
		}
	}
}

func newFacetNotLiveError(f *Facet, op string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeFacetNotLive,
		Message: fmt.Sprintf("%s on facet %d in state %s", op, f.id, f.state),
		Actor:   f.actor.name,
		Details: map[string]string{
			"facet": fmt.Sprintf("%d", f.id),
			"state": f.state.String(),
		},
	}
}

func newBadPatternError(f *Facet, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeBadPattern,
		Message: err.Error(),
		Actor:   f.actor.name,
		Cause:   err,
	}
}
