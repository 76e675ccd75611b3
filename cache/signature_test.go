package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureResultCacheGetOrCreateIsIdempotent(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	reqID := [32]byte{1}

	e1 := h.GetOrCreate(1, 1, reqID, []byte("msg"), 3, 1)
	e2 := h.GetOrCreate(1, 1, reqID, []byte("different message"), 5, 9)

	require.Same(t, e1, e2)
	require.Equal(t, 3, e2.Threshold)
}

func TestSignatureResultCacheAddPartialEnforcesGraceWindow(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	reqID := [32]byte{1}
	h.GetOrCreate(1, 1, reqID, []byte("msg"), 2, 1)

	var addrs [][20]byte
	for i := 0; i < 4; i++ {
		var a [20]byte
		a[0] = byte(i + 1)
		addrs = append(addrs, a)
	}

	require.True(t, h.AddPartial(1, reqID, addrs[0], []byte("sig0")))
	require.True(t, h.AddPartial(1, reqID, addrs[1], []byte("sig1")))
	require.True(t, h.AddPartial(1, reqID, addrs[2], []byte("sig2"))) // threshold+grace = 3
	require.False(t, h.AddPartial(1, reqID, addrs[3], []byte("sig3")))

	// resending an already-recorded member is idempotent, not a new slot.
	require.True(t, h.AddPartial(1, reqID, addrs[0], []byte("sig0")))
}

func TestSignatureResultCacheAddPartialRejectsAfterCommit(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	reqID := [32]byte{1}
	h.GetOrCreate(1, 1, reqID, []byte("msg"), 1, 0)

	var addr [20]byte
	addr[0] = 1
	require.True(t, h.AddPartial(1, reqID, addr, []byte("sig")))
	require.True(t, h.TryCommit(1, reqID))

	var other [20]byte
	other[0] = 2
	require.False(t, h.AddPartial(1, reqID, other, []byte("sig2")))
}

func TestSignatureResultCacheTryCommitOnlyOnce(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	reqID := [32]byte{1}
	h.GetOrCreate(1, 1, reqID, []byte("msg"), 1, 0)

	require.True(t, h.TryCommit(1, reqID))
	require.False(t, h.TryCommit(1, reqID))
}

func TestSignatureResultCacheTryCommitMissingIsFalse(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	require.False(t, h.TryCommit(1, [32]byte{9}))
}

func TestSignatureResultCacheReadyListsFullEntries(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	full := [32]byte{1}
	notFull := [32]byte{2}
	h.GetOrCreate(1, 1, full, []byte("msg"), 1, 0)
	h.GetOrCreate(1, 1, notFull, []byte("msg"), 2, 0)

	var addr [20]byte
	addr[0] = 1
	h.AddPartial(1, full, addr, []byte("sig"))

	ready := h.Ready(1)
	require.Len(t, ready, 1)
	require.Equal(t, full, ready[0].RequestID)
}

func TestSignatureResultCacheReadyExcludesCommitted(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	reqID := [32]byte{1}
	h.GetOrCreate(1, 1, reqID, []byte("msg"), 1, 0)
	var addr [20]byte
	addr[0] = 1
	h.AddPartial(1, reqID, addr, []byte("sig"))
	h.TryCommit(1, reqID)

	require.Empty(t, h.Ready(1))
}

func TestSignatureResultCacheUncommitAllowsRetry(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	reqID := [32]byte{1}
	h.GetOrCreate(1, 1, reqID, []byte("msg"), 1, 0)

	require.True(t, h.TryCommit(1, reqID))
	h.Uncommit(1, reqID)
	require.True(t, h.TryCommit(1, reqID))
}

func TestSignatureResultCacheUncommitMissingIsNoop(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	h.Uncommit(1, [32]byte{9}) // must not panic
}

func TestSignatureResultCacheCommittedListsOnlyCommitted(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	committed := [32]byte{1}
	pending := [32]byte{2}
	h.GetOrCreate(1, 1, committed, []byte("msg"), 1, 0)
	h.GetOrCreate(1, 1, pending, []byte("msg"), 1, 0)
	h.TryCommit(1, committed)

	out := h.Committed(1)
	require.Len(t, out, 1)
	require.Equal(t, committed, out[0].RequestID)
}

func TestSignatureResultCacheEvict(t *testing.T) {
	h := NewInMemorySignatureResultCache()
	reqID := [32]byte{1}
	h.GetOrCreate(1, 1, reqID, []byte("msg"), 1, 0)

	h.Evict(1, reqID)
	_, ok := h.Get(1, reqID)
	require.False(t, ok)
}
