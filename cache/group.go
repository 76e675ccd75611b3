package cache

import (
	"sync"

	"github.com/arpa-network/randcast-node/key"
)

// GroupInfoReader exposes a read-only view of the node's current local
// group state.
type GroupInfoReader interface {
	Get() *key.LocalGroupState
}

// GroupInfoHandler is the writer-locked single-group cache (spec.md §3:
// "mutations are serialized through a single writer lock per cache").
// One node belongs to at most one group at a time, so unlike
// BLSTasksHandler/SignatureResultCacheHandler this is not keyed.
type GroupInfoHandler interface {
	GroupInfoReader
	// Update runs fn holding the writer lock, allowing callers (DKG
	// phase machine, listeners) to perform a read-modify-write
	// atomically.
	Update(fn func(s *key.LocalGroupState) *key.LocalGroupState)
}

// InMemoryGroupInfo is the process-local GroupInfoHandler.
type InMemoryGroupInfo struct {
	mu    sync.RWMutex
	state *key.LocalGroupState
}

func NewInMemoryGroupInfo() *InMemoryGroupInfo {
	return &InMemoryGroupInfo{state: &key.LocalGroupState{}}
}

func (h *InMemoryGroupInfo) Get() *key.LocalGroupState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *InMemoryGroupInfo) Update(fn func(s *key.LocalGroupState) *key.LocalGroupState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = fn(h.state)
}
