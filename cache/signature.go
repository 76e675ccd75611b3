package cache

import "sync"

// SignatureResult is SignatureResultCache[request_id] (spec.md §3/§4.6).
type SignatureResult struct {
	GroupIndex uint32
	RequestID  [32]byte
	Message    []byte
	Threshold  int
	// Grace is the number of extra partials accepted past Threshold
	// before Add starts rejecting (spec.md §4.6 partial validity rule
	// iv; default grace = size - threshold, set by callers).
	Grace     int
	Partials  map[[20]byte][]byte // id_address -> partial signature bytes
	Committed bool
}

func newSignatureResult(groupIndex uint32, requestID [32]byte, message []byte, threshold, grace int) *SignatureResult {
	return &SignatureResult{
		GroupIndex: groupIndex,
		RequestID:  requestID,
		Message:    message,
		Threshold:  threshold,
		Grace:      grace,
		Partials:   make(map[[20]byte][]byte),
	}
}

// Full reports whether the entry has reached threshold and is ready to
// aggregate (spec.md §4.6 threshold trigger).
func (s *SignatureResult) Full() bool {
	return !s.Committed && len(s.Partials) >= s.Threshold
}

// SignatureResultCacheHandler is the per-chain signature aggregation
// cache. All mutation happens under a single writer lock per spec.md §3
// ownership rules, so the at-most-one-commit transition is race-free.
type SignatureResultCacheHandler interface {
	// GetOrCreate returns the existing entry for requestID, or creates
	// one with the given threshold/grace if missing.
	GetOrCreate(chainID uint64, groupIndex uint32, requestID [32]byte, message []byte, threshold, grace int) *SignatureResult
	Get(chainID uint64, requestID [32]byte) (*SignatureResult, bool)
	// AddPartial records a partial signature from member addr, enforcing
	// the grace-window cap (spec.md §4.6 partial validity rule iv).
	// Returns false if the entry is already committed, missing, or at
	// capacity.
	AddPartial(chainID uint64, requestID [32]byte, addr [20]byte, partial []byte) bool
	// TryCommit transitions committed false->true exactly once,
	// returning whether this call performed the transition.
	TryCommit(chainID uint64, requestID [32]byte) bool
	// Uncommit rolls back a TryCommit that did not correspond to a
	// successful on-chain submission (the transaction failed with a
	// transient, retryable error), so a later aggregation attempt can
	// still submit (spec.md §4.4 step 5).
	Uncommit(chainID uint64, requestID [32]byte)
	// Ready lists entries that have reached threshold and are not yet
	// committed (spec.md §4.6, feeding RandomnessSignatureAggregationListener).
	Ready(chainID uint64) []*SignatureResult
	// Committed lists entries already committed locally, feeding the
	// eviction sweep (spec.md §4.6 eviction rule).
	Committed(chainID uint64) []*SignatureResult
	// Evict removes an entry (spec.md §4.6 eviction rule: committed and
	// no longer pending on-chain, or epoch advanced past the entry).
	Evict(chainID uint64, requestID [32]byte)
}

// InMemorySignatureResultCache is the process-local
// SignatureResultCacheHandler.
type InMemorySignatureResultCache struct {
	mu      sync.Mutex
	byChain map[uint64]map[[32]byte]*SignatureResult
}

func NewInMemorySignatureResultCache() *InMemorySignatureResultCache {
	return &InMemorySignatureResultCache{byChain: make(map[uint64]map[[32]byte]*SignatureResult)}
}

func (h *InMemorySignatureResultCache) bucket(chainID uint64) map[[32]byte]*SignatureResult {
	b, ok := h.byChain[chainID]
	if !ok {
		b = make(map[[32]byte]*SignatureResult)
		h.byChain[chainID] = b
	}
	return b
}

func (h *InMemorySignatureResultCache) GetOrCreate(chainID uint64, groupIndex uint32, requestID [32]byte, message []byte, threshold, grace int) *SignatureResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := h.bucket(chainID)
	if e, ok := b[requestID]; ok {
		return e
	}
	e := newSignatureResult(groupIndex, requestID, message, threshold, grace)
	b[requestID] = e
	return e
}

func (h *InMemorySignatureResultCache) Get(chainID uint64, requestID [32]byte) (*SignatureResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.byChain[chainID][requestID]
	return e, ok
}

func (h *InMemorySignatureResultCache) AddPartial(chainID uint64, requestID [32]byte, addr [20]byte, partial []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.byChain[chainID][requestID]
	if !ok || e.Committed {
		return false
	}
	if _, exists := e.Partials[addr]; exists {
		return true // idempotent resend
	}
	if len(e.Partials) >= e.Threshold+e.Grace {
		return false
	}
	e.Partials[addr] = partial
	return true
}

func (h *InMemorySignatureResultCache) TryCommit(chainID uint64, requestID [32]byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.byChain[chainID][requestID]
	if !ok || e.Committed {
		return false
	}
	e.Committed = true
	return true
}

func (h *InMemorySignatureResultCache) Uncommit(chainID uint64, requestID [32]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.byChain[chainID][requestID]; ok {
		e.Committed = false
	}
}

func (h *InMemorySignatureResultCache) Ready(chainID uint64) []*SignatureResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*SignatureResult, 0)
	for _, e := range h.byChain[chainID] {
		if e.Full() {
			out = append(out, e)
		}
	}
	return out
}

func (h *InMemorySignatureResultCache) Committed(chainID uint64) []*SignatureResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*SignatureResult, 0)
	for _, e := range h.byChain[chainID] {
		if e.Committed {
			out = append(out, e)
		}
	}
	return out
}

func (h *InMemorySignatureResultCache) Evict(chainID uint64, requestID [32]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byChain[chainID], requestID)
}
