package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	retrygo "github.com/avast/retry-go/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrTimeout            = errors.New("retry timeout elapsed")
	ErrInvalidPolicy      = errors.New("retry policy needs max retries or a timeout")
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 10 * time.Second
)

// Policy bounds a retried operation. At least one of MaxRetries and Timeout
// must be set; zero means unset for both.
type Policy struct {
	MaxRetries uint          `mapstructure:"max-retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BaseDelay  time.Duration `mapstructure:"base-delay"`
	MaxDelay   time.Duration `mapstructure:"max-delay"`
	// Retryable decides which errors are retried, IsRetryable when nil.
	Retryable func(error) bool `mapstructure:"-"`
	Clock     clockwork.Clock  `mapstructure:"-"`
}

func (p *Policy) Validate() error {
	if p.MaxRetries == 0 && p.Timeout <= 0 {
		return ErrInvalidPolicy
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	return nil
}

// Do runs fn until it succeeds, returns a non retryable error or the policy
// is exhausted. Exhaustion yields a types.RetryableError wrapping
// ErrMaxRetriesExceeded or ErrTimeout and the last error of fn.
func Do[T any](ctx context.Context, policy Policy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var empty T
	if err := policy.Validate(); err != nil {
		return empty, err
	}
	baseDelay := policy.BaseDelay
	if baseDelay == 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := policy.MaxDelay
	if maxDelay == 0 {
		maxDelay = defaultMaxDelay
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	clock := policy.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	runCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	// zero attempts means until the context is done
	var attempts uint
	if policy.MaxRetries > 0 {
		attempts = policy.MaxRetries + 1
	}

	var (
		calls   uint
		lastErr error
	)
	result, err := retrygo.DoWithData(
		func() (T, error) {
			calls++
			result, err := fn(runCtx)
			if err != nil {
				lastErr = err
			}
			return result, err
		},
		retrygo.Context(runCtx),
		retrygo.Attempts(attempts),
		retrygo.Delay(baseDelay),
		retrygo.MaxDelay(maxDelay),
		retrygo.DelayType(retrygo.CombineDelay(retrygo.BackOffDelay, retrygo.RandomDelay)),
		retrygo.MaxJitter(baseDelay/2),
		retrygo.WithTimer(clock),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(retryable),
		retrygo.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Debug().
				Str("operation", name).
				Uint("attempt", n+1).
				Err(err).
				Msg("retrying operation")
		}),
	)
	if err == nil {
		return result, nil
	}

	switch {
	case ctx.Err() != nil:
		return empty, err
	case policy.Timeout > 0 && runCtx.Err() != nil:
		return empty, types.NewError(types.RetryableError,
			fmt.Errorf("%w: %s after %s and %d attempts: %w", ErrTimeout, name, policy.Timeout, calls, causeOr(lastErr, err)))
	case lastErr != nil && !retryable(lastErr):
		return empty, lastErr
	case attempts > 0 && calls >= attempts:
		return empty, types.NewError(types.RetryableError,
			fmt.Errorf("%w: %s failed %d times: %w", ErrMaxRetriesExceeded, name, calls, causeOr(lastErr, err)))
	}
	return empty, err
}

func causeOr(cause, fallback error) error {
	if cause != nil {
		return cause
	}
	return fallback
}

// IsRetryable classifies transient RPC and network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return typed.ErrorCode == types.RetryableError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"timeout",
		"temporarily unavailable",
		"service unavailable",
		"too many requests",
		"rate limit",
		"blockhash not found",
		"node is behind",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
