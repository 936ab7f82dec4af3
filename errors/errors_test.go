package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.class.String())
	}
}

func TestWrapFormatsContext(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Router", "handle", "republish measurement")

	require.Error(t, err)
	assert.Equal(t, "Router.handle: republish measurement failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "Router", "handle", "anything"))
	assert.NoError(t, WrapTransient(nil, "Router", "handle", "anything"))
	assert.NoError(t, WrapInvalid(nil, "Router", "handle", "anything"))
	assert.NoError(t, WrapFatal(nil, "Router", "handle", "anything"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "Validator", "process", "persist measurement")

			var ce *ClassifiedError
			require.True(t, stderrors.As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "Validator", ce.Component)
			assert.True(t, stderrors.Is(err, base))
			assert.Equal(t, tt.class, Classify(err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"sentinel connection lost", ErrConnectionLost, true},
		{"sentinel storage unavailable", ErrStorageUnavailable, true},
		{"wrapped sentinel", fmt.Errorf("consume: %w", ErrNoConnection), true},
		{"context deadline", context.DeadlineExceeded, true},
		{"driver message pattern", stderrors.New("dial tcp: connection refused"), true},
		{"invalid data", ErrInvalidData, false},
		{"plain error", stderrors.New("schema mismatch"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidData))
	assert.True(t, IsInvalid(ErrMissingField))
	assert.True(t, IsInvalid(fmt.Errorf("decode: %w", ErrParsingFailed)))
	assert.False(t, IsInvalid(ErrConnectionLost))
	assert.False(t, IsInvalid(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(WrapFatal(stderrors.New("boom"), "c", "m", "a")))
	assert.False(t, IsFatal(ErrConnectionLost))
	assert.False(t, IsFatal(nil))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}
