package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryBlockInfoMissingChain(t *testing.T) {
	h := NewInMemoryBlockInfo()
	_, ok := h.Height(1)
	require.False(t, ok)
}

func TestInMemoryBlockInfoSetAndGet(t *testing.T) {
	h := NewInMemoryBlockInfo()
	now := time.Now()
	h.SetHeight(1, 100, now)

	b, ok := h.Height(1)
	require.True(t, ok)
	require.Equal(t, uint64(100), b.Height)
	require.WithinDuration(t, now, b.UpdatedAt, 0)

	_, ok = h.Height(2)
	require.False(t, ok)
}

func TestInMemoryBlockInfoOverwrite(t *testing.T) {
	h := NewInMemoryBlockInfo()
	h.SetHeight(1, 100, time.Now())
	h.SetHeight(1, 200, time.Now())

	b, ok := h.Height(1)
	require.True(t, ok)
	require.Equal(t, uint64(200), b.Height)
}
