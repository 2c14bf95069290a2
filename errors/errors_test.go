package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Format(t *testing.T) {
	base := New("boom")
	err := Wrap(base, "Manager", "buildSupergraph", "registry fetch")
	require.Error(t, err)
	assert.Equal(t, "Manager.buildSupergraph: registry fetch failed: boom", err.Error())
	assert.True(t, Is(err, base))
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(nil, "C", "M", "a"))
	assert.Nil(t, WrapTransient(nil, "C", "M", "a"))
	assert.Nil(t, WrapInvalid(nil, "C", "M", "a"))
	assert.Nil(t, WrapFatal(nil, "C", "M", "a"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{"registry unavailable", ErrRegistryUnavailable, true, false, false},
		{"subgraph failure", ErrSubgraphFailure, true, false, false},
		{"deadline", context.DeadlineExceeded, true, false, false},
		{"composition failure", ErrCompositionFailed, false, true, false},
		{"invalid query", ErrInvalidQuery, false, true, false},
		{"missing config", ErrMissingConfig, false, false, true},
		{"no supergraph", ErrNoSupergraph, false, false, true},
		{"wrapped transient", WrapTransient(New("x"), "C", "M", "a"), true, false, false},
		{"wrapped invalid", WrapInvalid(New("x"), "C", "M", "a"), false, true, false},
		{"wrapped fatal", WrapFatal(New("x"), "C", "M", "a"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err), "IsTransient")
			assert.Equal(t, tt.invalid, IsInvalid(tt.err), "IsInvalid")
			assert.Equal(t, tt.fatal, IsFatal(tt.err), "IsFatal")
		})
	}
}

func TestClassification_PreservedThroughChain(t *testing.T) {
	inner := WrapInvalid(New("bad sdl"), "Composer", "Compose", "merge")
	outer := fmt.Errorf("cycle: %w", inner)
	assert.True(t, IsInvalid(outer))
	assert.Equal(t, ErrorInvalid, Classify(outer))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{nil, 200},
		{ErrUnauthenticated, 401},
		{Wrap(ErrUnauthenticated, "Auth", "Resolve", "bearer validation"), 401},
		{ErrForbidden, 403},
		{ErrNoSupergraph, 503},
		{ErrInvalidQuery, 400},
		{ErrCompositionFailed, 400},
		{New("anything else"), 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.err), "err=%v", tt.err)
	}
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}
