package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/log"
)

func TestFixedSchedulerStartRunsAndStops(t *testing.T) {
	s := NewFixedScheduler(log.DefaultLogger())
	key := FixedKey{ChainID: 1, Kind: TaskListener, Name: "block"}

	started := make(chan struct{})
	err := s.Start(context.Background(), key, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task did not start")
	}

	list := s.List()
	require.Len(t, list, 1)
	require.True(t, list[0].Running)
	require.Equal(t, uint64(1), list[0].ChainID)
	require.Equal(t, "block", list[0].Name)

	s.Stop(key)

	list = s.List()
	require.Empty(t, list)
}

func TestFixedSchedulerStartRejectsDuplicateKey(t *testing.T) {
	s := NewFixedScheduler(log.DefaultLogger())
	key := FixedKey{ChainID: 1, Kind: TaskListener, Name: "block"}

	require.NoError(t, s.Start(context.Background(), key, func(ctx context.Context) { <-ctx.Done() }))
	err := s.Start(context.Background(), key, func(ctx context.Context) { <-ctx.Done() })
	require.Error(t, err)
	_, ok := err.(*AlreadyExistsError)
	require.True(t, ok)

	s.StopAll()
}

func TestFixedSchedulerStopAllWaitsForEveryTask(t *testing.T) {
	s := NewFixedScheduler(log.DefaultLogger())
	const n = 5
	exited := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		key := FixedKey{ChainID: uint64(i), Kind: TaskListener, Name: "block"}
		require.NoError(t, s.Start(context.Background(), key, func(ctx context.Context) {
			<-ctx.Done()
			exited <- struct{}{}
		}))
	}

	s.StopAll()
	require.Len(t, exited, n)
	require.Empty(t, s.List())
}

func TestFixedSchedulerStopUnknownKeyIsNoop(t *testing.T) {
	s := NewFixedScheduler(log.DefaultLogger())
	require.NotPanics(t, func() { s.Stop(FixedKey{ChainID: 1, Kind: TaskListener, Name: "missing"}) })
}
