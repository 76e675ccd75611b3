package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsWithoutRetrying(t *testing.T) {
	d := RetryDescriptor{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 2, MaxAttempts: 3}
	calls := 0
	err := WithRetry(context.Background(), d, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetryRetriesUntilSuccess(t *testing.T) {
	d := RetryDescriptor{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 2, MaxAttempts: 3}
	calls := 0
	err := WithRetry(context.Background(), d, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	d := RetryDescriptor{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 2, MaxAttempts: 3}
	calls := 0
	err := WithRetry(context.Background(), d, func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	d := RetryDescriptor{InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, MaxAttempts: 100}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, d, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("keeps failing")
	})
	require.Error(t, err)
}

func TestDefaultRetryDescriptors(t *testing.T) {
	view := DefaultViewRetry()
	require.Equal(t, 5, view.MaxAttempts)
	require.Less(t, view.InitialInterval, view.MaxInterval)

	tx := DefaultTxRetry()
	require.Equal(t, 3, tx.MaxAttempts)
	require.Less(t, tx.InitialInterval, tx.MaxInterval)
}
