package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableByType(t *testing.T) {
	retryable := []ErrorType{ErrorTypeRateLimit, ErrorTypeConnection, ErrorTypeServer, ErrorTypeEmptyResponse}
	for _, et := range retryable {
		assert.True(t, NewError(et, "x").IsRetryable(), "%s should be retryable", et)
	}

	fatal := []ErrorType{ErrorTypeAuth, ErrorTypeBadRequest, ErrorTypeUnknown}
	for _, et := range fatal {
		assert.False(t, NewError(et, "x").IsRetryable(), "%s should not be retryable", et)
	}
}

func TestIsRetryableUnclassified(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("mystery")))
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(NewError(ErrorTypeServer, "overloaded")))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewErrorWithCause(ErrorTypeConnection, cause, "connection error")

	wrapped := fmt.Errorf("calling model: %w", err)
	require.ErrorIs(t, wrapped, cause)
	assert.True(t, Is(wrapped, ErrorTypeConnection))
	assert.Equal(t, ErrorTypeConnection, TypeOf(wrapped))
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]ErrorType{
		429: ErrorTypeRateLimit,
		401: ErrorTypeAuth,
		403: ErrorTypeAuth,
		400: ErrorTypeBadRequest,
		422: ErrorTypeBadRequest,
		500: ErrorTypeServer,
		503: ErrorTypeServer,
		200: ErrorTypeUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, ClassifyHTTPStatus(status), "status %d", status)
	}
}

func TestClassifyMessages(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorType
	}{
		{errors.New("429 Too Many Requests"), ErrorTypeRateLimit},
		{errors.New("dial tcp: connection refused"), ErrorTypeConnection},
		{errors.New("unexpected EOF"), ErrorTypeConnection},
		{errors.New("503 Service Unavailable"), ErrorTypeServer},
		{errors.New("invalid api key"), ErrorTypeAuth},
		{errors.New("maximum context length exceeded"), ErrorTypeBadRequest},
		{errors.New("weird failure"), ErrorTypeUnknown},
	}
	for _, tc := range cases {
		got := Classify(tc.err)
		assert.Equal(t, tc.want, TypeOf(got), "classifying %q", tc.err)
		require.ErrorIs(t, got, tc.err, "classified error must wrap the original")
	}
}

func TestClassifyPassthrough(t *testing.T) {
	assert.Nil(t, Classify(nil))

	already := NewError(ErrorTypeAuth, "nope")
	assert.Same(t, already, Classify(already).(*Error))

	assert.Equal(t, context.Canceled, Classify(context.Canceled))
	assert.Equal(t, context.DeadlineExceeded, Classify(context.DeadlineExceeded))
}
