package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	p := NewPollerWithClock("test", time.Minute, clock, func(ctx context.Context) error {
		if calls.Add(1) == 2 {
			return errors.New("poll failed")
		}
		return nil
	})

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	// a failing poll does not stop the poller
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)

	p.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollerRecoversFromPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	p := NewPollerWithClock("panicking", time.Minute, clockwork.NewFakeClock(), func(ctx context.Context) error {
		calls.Add(1)
		cancel()
		panic("boom")
	})

	p.Start(ctx)
	assert.Equal(t, int32(1), calls.Load())
}
