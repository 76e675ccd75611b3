package scheduler

import (
	"context"
	"testing"
	"time"

	cl "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/log"
)

func TestDynamicSchedulerSpawnIsNoopWhileRunning(t *testing.T) {
	s := NewDynamicScheduler(time.Minute, cl.NewFakeClock(), log.DefaultLogger())
	key := DynamicKey("1/task-a")

	started := make(chan struct{})
	require.True(t, s.Spawn(context.Background(), key, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	calls := 0
	require.False(t, s.Spawn(context.Background(), key, func(ctx context.Context) { calls++ }))
	require.Equal(t, 0, calls)

	s.Cancel(key)
}

func TestDynamicSchedulerSpawnAfterFinishReplacesEntry(t *testing.T) {
	s := NewDynamicScheduler(time.Minute, cl.NewFakeClock(), log.DefaultLogger())
	key := DynamicKey("1/task-a")

	done := make(chan struct{})
	require.True(t, s.Spawn(context.Background(), key, func(ctx context.Context) { close(done) }))
	<-done

	require.Eventually(t, func() bool {
		second := make(chan struct{})
		ok := s.Spawn(context.Background(), key, func(ctx context.Context) { close(second) })
		if !ok {
			return false
		}
		<-second
		return true
	}, time.Second, time.Millisecond)
}

func TestDynamicSchedulerSpawnAssignsDistinctCorrelationIDsPerRun(t *testing.T) {
	s := NewDynamicScheduler(time.Minute, cl.NewFakeClock(), log.DefaultLogger())
	key := DynamicKey("1/task-a")

	done := make(chan struct{})
	s.Spawn(context.Background(), key, func(ctx context.Context) { close(done) })
	<-done

	s.mu.Lock()
	first := s.entries[key].correlationID
	s.mu.Unlock()
	require.NotEmpty(t, first)

	require.Eventually(t, func() bool {
		second := make(chan struct{})
		return s.Spawn(context.Background(), key, func(ctx context.Context) { close(second) })
	}, time.Second, time.Millisecond)

	s.mu.Lock()
	second := s.entries[key].correlationID
	s.mu.Unlock()
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)
}

func TestDynamicSchedulerCancel(t *testing.T) {
	s := NewDynamicScheduler(time.Minute, cl.NewFakeClock(), log.DefaultLogger())
	key := DynamicKey("1/task-a")

	started := make(chan struct{})
	cancelled := make(chan struct{})
	s.Spawn(context.Background(), key, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started
	s.Cancel(key)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
}

func TestDynamicSchedulerCancelUnknownKeyIsNoop(t *testing.T) {
	s := NewDynamicScheduler(time.Minute, cl.NewFakeClock(), log.DefaultLogger())
	require.NotPanics(t, func() { s.Cancel(DynamicKey("missing")) })
}

func TestDynamicSchedulerJanitorSweepsExpiredFinishedEntries(t *testing.T) {
	clock := cl.NewFakeClock()
	s := NewDynamicScheduler(time.Minute, clock, log.DefaultLogger())
	key := DynamicKey("1/task-a")

	done := make(chan struct{})
	s.Spawn(context.Background(), key, func(ctx context.Context) { close(done) })
	<-done

	// allow the goroutine's deferred expireAt bookkeeping to land before
	// advancing the clock past the ttl.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.entries[key]
		return ok && !s.entries[key].expireAt.IsZero()
	}, time.Second, time.Millisecond)

	clock.Advance(2 * time.Minute)
	s.sweep()

	s.mu.Lock()
	_, ok := s.entries[key]
	s.mu.Unlock()
	require.False(t, ok)
}

func TestDynamicSchedulerStopAllCancelsEverything(t *testing.T) {
	s := NewDynamicScheduler(time.Minute, cl.NewFakeClock(), log.DefaultLogger())
	const n = 4
	cancelled := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		key := DynamicKey(string(rune('a' + i)))
		started := make(chan struct{})
		s.Spawn(context.Background(), key, func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			cancelled <- struct{}{}
		})
		<-started
	}

	s.StopAll()
	require.Eventually(t, func() bool { return len(cancelled) == n }, time.Second, time.Millisecond)
}
