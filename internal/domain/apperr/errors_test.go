package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("failed to search: %w", Wrap(ErrUpstreamUnavailable, cause))

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrUpstreamUnavailable, Kind(err))
	assert.True(t, IsTransient(err))

	assert.Nil(t, Wrap(ErrNotFound, nil))
	// 已带同类别时不重复包装
	assert.Same(t, err, Wrap(ErrUpstreamUnavailable, err))
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"validation", NewValidationError("text", "empty"), ErrInvalidInput},
		{"rate limited", Wrap(ErrRateLimited, errors.New("429")), ErrRateLimited},
		{"deadline", fmt.Errorf("llm: %w", context.DeadlineExceeded), ErrUpstreamUnavailable},
		{"closed", ErrChatClosed, ErrChatClosed},
		{"unknown", errors.New("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, MsgRetryLater, UserMessage(Wrap(ErrRateLimited, errors.New("quota"))))
	assert.Equal(t, MsgRetryLater, UserMessage(Wrap(ErrUpstreamUnavailable, errors.New("dial"))))
	assert.Equal(t, MsgInvalid, UserMessage(NewValidationError("text", "empty")))
	assert.Equal(t, MsgApology, UserMessage(errors.New("nil pointer")))
	assert.NotContains(t, UserMessage(errors.New("secret stack")), "secret")
}
