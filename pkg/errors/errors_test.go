package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeConnection, "should vanish"))
}

func TestErrorFormatting(t *testing.T) {
	err := New(ErrorTypeConfig, "missing field")
	assert.Equal(t, "config: missing field", err.Error())

	wrapped := Wrap(stderrors.New("EOF"), ErrorTypeData, "parse failed")
	assert.Equal(t, "data: parse failed: EOF", wrapped.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("broken pipe")
	err := Wrap(cause, ErrorTypeConnection, "write failed")

	require.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrorTypeRateLimit, "429")))
	assert.True(t, IsRetryable(New(ErrorTypeTimeout, "deadline")))
	assert.True(t, IsRetryable(New(ErrorTypeConnection, "reset")))

	assert.False(t, IsRetryable(New(ErrorTypeAuthentication, "denied")))
	assert.False(t, IsRetryable(New(ErrorTypeData, "bad json")))
	assert.False(t, IsRetryable(stderrors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestIsTypeSeesThroughWrapping(t *testing.T) {
	inner := New(ErrorTypeQuery, "syntax error")
	outer := fmt.Errorf("while inserting: %w", inner)

	assert.True(t, IsType(outer, ErrorTypeQuery))
	assert.False(t, IsType(outer, ErrorTypeConnection))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeValidation, "out of range").
		WithDetail("field", "capacity").
		WithDetail("value", -1)

	assert.Equal(t, "capacity", err.Details["field"])
	assert.Equal(t, -1, err.Details["value"])
}
