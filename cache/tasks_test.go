package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryBLSTasksAddIsIdempotent(t *testing.T) {
	h := NewInMemoryBLSTasks()
	task := RandomnessTask{RequestID: [32]byte{1}, ChainID: 1, State: TaskPending}

	require.True(t, h.Add(task))
	require.False(t, h.Add(task))

	got, ok := h.Get(1, task.RequestID)
	require.True(t, ok)
	require.Equal(t, task, got)
}

func TestInMemoryBLSTasksPendingFiltersHandled(t *testing.T) {
	h := NewInMemoryBLSTasks()
	h.Add(RandomnessTask{RequestID: [32]byte{1}, ChainID: 1, State: TaskPending})
	h.Add(RandomnessTask{RequestID: [32]byte{2}, ChainID: 1, State: TaskPending})
	h.Add(RandomnessTask{RequestID: [32]byte{3}, ChainID: 2, State: TaskPending})

	h.MarkHandled(1, [32]byte{1})

	pending := h.Pending(1)
	require.Len(t, pending, 1)
	require.Equal(t, [32]byte{2}, pending[0].RequestID)

	got, ok := h.Get(1, [32]byte{1})
	require.True(t, ok)
	require.Equal(t, TaskHandled, got.State)

	require.Len(t, h.Pending(2), 1)
}

func TestInMemoryBLSTasksMarkHandledMissingIsNoop(t *testing.T) {
	h := NewInMemoryBLSTasks()
	require.NotPanics(t, func() { h.MarkHandled(1, [32]byte{9}) })
}

func TestInMemoryBLSTasksLastScannedBlock(t *testing.T) {
	h := NewInMemoryBLSTasks()
	require.Equal(t, uint64(0), h.LastScannedBlock(1))

	h.SetLastScannedBlock(1, 42)
	require.Equal(t, uint64(42), h.LastScannedBlock(1))
	require.Equal(t, uint64(0), h.LastScannedBlock(2))
}
