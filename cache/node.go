// Package cache holds the node's authoritative in-memory state: identity,
// group info, block height, the BLS task queue, and the signature result
// cache (spec.md §3/§4.6). Each handler is a capability-polymorphic
// interface (read/update/persist) with one in-memory implementation;
// store.go-backed durable variants wrap these with bbolt persistence,
// the same layering drand's chain.Store / boltdb.BoltStore split uses
// (_examples/drand-drand/chain/boltdb/store.go).
package cache

import (
	"sync"

	"github.com/arpa-network/randcast-node/key"
)

// NodeInfoReader exposes the node's own identity.
type NodeInfoReader interface {
	Identity() *key.Identity
}

// NodeInfoHandler is the full capability set: read + update (identity is
// set once at startup and only the DKG keypair may later rotate).
type NodeInfoHandler interface {
	NodeInfoReader
	SetIdentity(id *key.Identity)
	RotateDKGKeyPair(kp *key.Pair)
}

// InMemoryNodeInfo is the process-local NodeInfoHandler.
type InMemoryNodeInfo struct {
	mu sync.RWMutex
	id *key.Identity
}

func NewInMemoryNodeInfo() *InMemoryNodeInfo {
	return &InMemoryNodeInfo{}
}

func (h *InMemoryNodeInfo) Identity() *key.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.id
}

func (h *InMemoryNodeInfo) SetIdentity(id *key.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = id
}

// RotateDKGKeyPair replaces the DKG keypair in place. Callers must ensure
// the node is not currently a member of an active group (spec.md §3).
func (h *InMemoryNodeInfo) RotateDKGKeyPair(kp *key.Pair) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.id != nil {
		h.id.DKGKeyPair = kp
	}
}
