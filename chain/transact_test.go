package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsAlreadyFulfilled(t *testing.T) {
	require.True(t, IsAlreadyFulfilled(errors.New("execution reverted: already fulfilled")))
	require.False(t, IsAlreadyFulfilled(errors.New("execution reverted: some other reason")))
	require.False(t, IsAlreadyFulfilled(nil))
}

func TestIsRetryableTxError(t *testing.T) {
	require.True(t, IsRetryableTxError(errors.New("nonce too low")))
	require.True(t, IsRetryableTxError(errors.New("replacement transaction underpriced")))
	require.True(t, IsRetryableTxError(errors.New("context deadline exceeded")))
	require.False(t, IsRetryableTxError(errors.New("execution reverted: already fulfilled")))
	require.False(t, IsRetryableTxError(nil))
}
