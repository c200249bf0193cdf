package dataspace

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Error(t *testing.T) {
	err := &RuntimeError{Code: ErrCodeScriptPanic, Message: "boom", Actor: "box"}
	assert.Equal(t, "SCRIPT_PANIC: boom (actor=box)", err.Error())

	bare := &RuntimeError{Code: ErrCodeBadPattern, Message: "bad"}
	assert.Equal(t, "BAD_PATTERN: bad", bare.Error())
}

func TestRuntimeError_Predicates(t *testing.T) {
	wrapped := fmt.Errorf("turn: %w", &RuntimeError{Code: ErrCodeFacetNotLive})

	assert.True(t, IsFacetNotLive(wrapped))
	assert.False(t, IsScriptPanic(wrapped))
	assert.False(t, IsBadPattern(errors.New("plain")))
	assert.False(t, IsScriptPanic(nil))
}

func TestNewScriptPanicError(t *testing.T) {
	cause := errors.New("disk on fire")

	tests := []struct {
		name      string
		recovered any
		wantMsg   string
		wantCause error
	}{
		{"string", "boom", "boom", nil},
		{"error", cause, "disk on fire", cause},
		{"int", 42, "42", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewScriptPanicError("box", tt.recovered)
			assert.Equal(t, ErrCodeScriptPanic, err.Code)
			assert.Equal(t, tt.wantMsg, err.Message)
			assert.Equal(t, "box", err.Actor)
			if tt.wantCause != nil {
				assert.ErrorIs(t, err, tt.wantCause)
			}
		})
	}
}

func TestNewScriptPanicError_KeepsRuntimeErrors(t *testing.T) {
	orig := &RuntimeError{Code: ErrCodeFacetNotLive, Message: "late"}
	err := NewScriptPanicError("box", orig)

	assert.Same(t, orig, err)
	assert.Equal(t, "box", err.Actor)
	assert.True(t, IsFacetNotLive(err))
}
