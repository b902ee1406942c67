package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	t.Run("deadline exceeded is a timeout", func(t *testing.T) {
		err := Classify("sicar", fmt.Errorf("get: %w", context.DeadlineExceeded))
		assert.Equal(t, UpstreamTimeout, KindOf(err))
	})

	t.Run("net timeout is a timeout", func(t *testing.T) {
		err := Classify("sicar", &net.OpError{Op: "dial", Err: timeoutErr{}})
		assert.Equal(t, UpstreamTimeout, KindOf(err))
	})

	t.Run("connection refused is unavailable", func(t *testing.T) {
		err := Classify("sicar", errors.New("connection refused"))
		assert.Equal(t, UpstreamUnavailable, KindOf(err))
	})

	t.Run("classified errors pass through", func(t *testing.T) {
		orig := New(UpstreamMalformedResponse, "bad json", nil)
		err := Classify("sicar", fmt.Errorf("wrap: %w", orig))
		assert.Equal(t, UpstreamMalformedResponse, KindOf(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Classify("sicar", nil))
	})
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("lookup: %w", New(InvalidSelection, "index out of range", cause))

	assert.True(t, errors.Is(err, &Error{Kind: InvalidSelection}))
	assert.False(t, errors.Is(err, &Error{Kind: NotFound}))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, Is(err, InvalidSelection))

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.NotEmpty(t, ae.Instructions)
	assert.Contains(t, ae.Error(), "boom")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestUserFacingCollapsesMalformed(t *testing.T) {
	assert.Equal(t, UpstreamUnavailable, UserFacing(UpstreamMalformedResponse))
	assert.Equal(t, UpstreamTimeout, UserFacing(UpstreamTimeout))
	assert.Equal(t, DefaultInstructions(UpstreamUnavailable), DefaultInstructions(UpstreamMalformedResponse))
}

func TestWithInstructions(t *testing.T) {
	err := New(NotFound, "nothing here", nil).WithInstructions("custom")
	assert.Equal(t, []string{"custom"}, err.Instructions)
}
