package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	cl "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/log"
)

func TestLoopTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{Interval: 2 * time.Millisecond}

	var ticks int32
	done := make(chan struct{})
	go func() {
		Loop(ctx, cl.NewRealClock(), cfg, log.DefaultLogger(), nil, func(ctx context.Context) error {
			atomic.AddInt32(&ticks, 1)
			return nil
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&ticks) >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
}

func TestLoopReconnectsAfterConsecutiveFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := Config{Interval: time.Millisecond, ProviderResetAttempts: 3, ProviderResetInterval: time.Millisecond}

	var reconnects int32
	go Loop(ctx, cl.NewRealClock(), cfg, log.DefaultLogger(),
		func(ctx context.Context) error {
			atomic.AddInt32(&reconnects, 1)
			return nil
		},
		func(ctx context.Context) error {
			return errors.New("always fails")
		},
	)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&reconnects) >= 1 }, time.Second, time.Millisecond)
}

func TestLoopResetsFailureCountOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := Config{Interval: time.Millisecond, ProviderResetAttempts: 2, ProviderResetInterval: time.Millisecond}

	var reconnects int32
	var tickCount int32
	go Loop(ctx, cl.NewRealClock(), cfg, log.DefaultLogger(),
		func(ctx context.Context) error {
			atomic.AddInt32(&reconnects, 1)
			return nil
		},
		func(ctx context.Context) error {
			n := atomic.AddInt32(&tickCount, 1)
			if n%2 == 0 {
				return errors.New("intermittent")
			}
			return nil
		},
	)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&reconnects))
}

func TestIntervalWithoutJitterIsExact(t *testing.T) {
	cfg := Config{Interval: 10 * time.Second, UseJitter: false}
	require.Equal(t, 10*time.Second, interval(cfg))
}

func TestIntervalWithJitterIsWithinHalfToFullRange(t *testing.T) {
	cfg := Config{Interval: 10 * time.Second, UseJitter: true}
	for i := 0; i < 50; i++ {
		d := interval(cfg)
		require.GreaterOrEqual(t, d, 5*time.Second)
		require.LessOrEqual(t, d, 10*time.Second)
	}
}

func TestIntervalZeroIsZero(t *testing.T) {
	require.Equal(t, time.Duration(0), interval(Config{Interval: 0, UseJitter: true}))
}
