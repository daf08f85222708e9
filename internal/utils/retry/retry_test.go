package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = types.NewErrorWithMsg(types.RetryableError, "connection reset by peer")

func TestDoMaxRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, "always failing",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errTransient
		})

	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
}

func TestDoTimeout(t *testing.T) {
	// the fake clock never fires, so only the timeout can end the loop
	clock := clockwork.NewFakeClock()
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), Policy{Timeout: 50 * time.Millisecond, Clock: clock}, "always failing",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errTransient
		})

	require.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 1, calls)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDoExhaustionIsRetryable(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	fail := func(ctx context.Context) (int, error) { return 0, refused }

	_, err := Do(context.Background(), Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, "dial", fail)
	require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, types.RetryableError, types.CodeOf(err))
	assert.Equal(t, types.ExitCodeRetryable, types.ExitCode(err))

	_, err = Do(context.Background(), Policy{Timeout: 20 * time.Millisecond, Clock: clockwork.NewFakeClock()}, "dial", fail)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, types.ExitCodeRetryable, types.ExitCode(err))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Policy{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, "flaky",
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errTransient
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("invalid merkle proof")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 5, BaseDelay: time.Millisecond}, "permanent",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, permanent
		})

	require.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoInvalidPolicy(t *testing.T) {
	_, err := Do(context.Background(), Policy{}, "unbounded", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errTransient, true},
		{types.NewErrorWithMsg(types.ValidationError, "timeout in message but typed"), false},
		{errors.New("rpc: 429 Too Many Requests"), true},
		{fmt.Errorf("send: %w", errors.New("unexpected EOF")), true},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{errors.New("custom program error: 0x1770"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsRetryable(tt.err), "%v", tt.err)
	}
}
