package cache

import (
	"sync"
	"time"
)

// BlockInfo is one chain's BlockInfoCache entry (spec.md §3).
type BlockInfo struct {
	Height    uint64
	UpdatedAt time.Time
}

// BlockInfoHandler tracks the last-seen block height per chain, used to
// evaluate block-relative timeouts (DKG phase boundaries, exclusivity
// windows).
type BlockInfoHandler interface {
	Height(chainID uint64) (BlockInfo, bool)
	SetHeight(chainID uint64, height uint64, at time.Time)
}

// InMemoryBlockInfo is the process-local BlockInfoHandler.
type InMemoryBlockInfo struct {
	mu     sync.RWMutex
	byChain map[uint64]BlockInfo
}

func NewInMemoryBlockInfo() *InMemoryBlockInfo {
	return &InMemoryBlockInfo{byChain: make(map[uint64]BlockInfo)}
}

func (h *InMemoryBlockInfo) Height(chainID uint64) (BlockInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.byChain[chainID]
	return b, ok
}

func (h *InMemoryBlockInfo) SetHeight(chainID uint64, height uint64, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byChain[chainID] = BlockInfo{Height: height, UpdatedAt: at}
}
