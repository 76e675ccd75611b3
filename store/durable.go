package store

import (
	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// DurableGroupInfo wraps an in-memory GroupInfoHandler, mirroring every
// write to the bbolt store (spec.md §2 "Writes mirrored to the external
// store"; spec.md line 241 "one in-memory impl and one durable impl").
type DurableGroupInfo struct {
	mem   *cache.InMemoryGroupInfo
	store *Store
	log   log.Logger
}

// NewDurableGroupInfo loads any persisted group state into mem before
// returning, so a restart starts from the saved group and DKG status
// rather than ungrouped (an interrupted DKG round is not rerun).
func NewDurableGroupInfo(mem *cache.InMemoryGroupInfo, s *Store, sch *crypto.Scheme, l log.Logger) (*DurableGroupInfo, error) {
	state, found, err := s.LoadGroupState(sch)
	if err != nil {
		return nil, err
	}
	if found {
		mem.Update(func(*key.LocalGroupState) *key.LocalGroupState { return state })
	}
	return &DurableGroupInfo{mem: mem, store: s, log: l}, nil
}

func (h *DurableGroupInfo) Get() *key.LocalGroupState { return h.mem.Get() }

func (h *DurableGroupInfo) Update(fn func(s *key.LocalGroupState) *key.LocalGroupState) {
	h.mem.Update(fn)
	if err := h.store.SaveGroupState(h.mem.Get()); err != nil {
		h.log.Errorw("persist group state", "err", err)
	}
}

// DurableNodeInfo wraps an in-memory NodeInfoHandler with store-backed
// persistence of the node's identity.
type DurableNodeInfo struct {
	mem   *cache.InMemoryNodeInfo
	store *Store
	log   log.Logger
}

// NewDurableNodeInfo loads a previously persisted identity if present;
// callers must still call SetIdentity on first run once a fresh identity
// has been registered on-chain.
func NewDurableNodeInfo(mem *cache.InMemoryNodeInfo, s *Store, sch *crypto.Scheme, l log.Logger) (*DurableNodeInfo, bool, error) {
	id, found, err := s.LoadIdentity(sch)
	if err != nil {
		return nil, false, err
	}
	if found {
		mem.SetIdentity(id)
	}
	return &DurableNodeInfo{mem: mem, store: s, log: l}, found, nil
}

func (h *DurableNodeInfo) Identity() *key.Identity { return h.mem.Identity() }

func (h *DurableNodeInfo) SetIdentity(id *key.Identity) {
	h.mem.SetIdentity(id)
	if err := h.store.SaveIdentity(id); err != nil {
		h.log.Errorw("persist identity", "err", err)
	}
}

func (h *DurableNodeInfo) RotateDKGKeyPair(kp *key.Pair) {
	h.mem.RotateDKGKeyPair(kp)
	if err := h.store.SaveIdentity(h.mem.Identity()); err != nil {
		h.log.Errorw("persist rotated identity", "err", err)
	}
}

// DurableBLSTasks wraps an in-memory BLSTasksHandler with task and
// last-scanned-block persistence.
type DurableBLSTasks struct {
	mem   *cache.InMemoryBLSTasks
	store *Store
	log   log.Logger
}

// NewDurableBLSTasks warms mem with every persisted task/cursor for each
// chain ID the caller is about to serve.
func NewDurableBLSTasks(mem *cache.InMemoryBLSTasks, s *Store, chainIDs []uint64, l log.Logger) (*DurableBLSTasks, error) {
	for _, id := range chainIDs {
		tasks, err := s.LoadTasks(id)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			mem.Add(t)
		}
		height, err := s.LoadLastScannedBlock(id)
		if err != nil {
			return nil, err
		}
		mem.SetLastScannedBlock(id, height)
	}
	return &DurableBLSTasks{mem: mem, store: s, log: l}, nil
}

func (h *DurableBLSTasks) Add(t cache.RandomnessTask) bool {
	inserted := h.mem.Add(t)
	if inserted {
		if err := h.store.SaveTask(t); err != nil {
			h.log.Errorw("persist task", "request_id", t.RequestID, "err", err)
		}
	}
	return inserted
}

func (h *DurableBLSTasks) Get(chainID uint64, requestID [32]byte) (cache.RandomnessTask, bool) {
	return h.mem.Get(chainID, requestID)
}

func (h *DurableBLSTasks) Pending(chainID uint64) []cache.RandomnessTask {
	return h.mem.Pending(chainID)
}

func (h *DurableBLSTasks) MarkHandled(chainID uint64, requestID [32]byte) {
	h.mem.MarkHandled(chainID, requestID)
	if t, ok := h.mem.Get(chainID, requestID); ok {
		if err := h.store.SaveTask(t); err != nil {
			h.log.Errorw("persist handled task", "request_id", requestID, "err", err)
		}
	}
}

func (h *DurableBLSTasks) LastScannedBlock(chainID uint64) uint64 {
	return h.mem.LastScannedBlock(chainID)
}

func (h *DurableBLSTasks) SetLastScannedBlock(chainID uint64, height uint64) {
	h.mem.SetLastScannedBlock(chainID, height)
	if err := h.store.SaveLastScannedBlock(chainID, height); err != nil {
		h.log.Errorw("persist last scanned block", "chain_id", chainID, "err", err)
	}
}

// DurableSignatureResultCache wraps an in-memory
// SignatureResultCacheHandler with per-entry persistence. Entries are
// written to the store but never read back: the constructor starts from
// mem as given, so partials collected before a restart are not restored.
type DurableSignatureResultCache struct {
	mem   *cache.InMemorySignatureResultCache
	store *Store
	log   log.Logger
}

func NewDurableSignatureResultCache(mem *cache.InMemorySignatureResultCache, s *Store, l log.Logger) *DurableSignatureResultCache {
	return &DurableSignatureResultCache{mem: mem, store: s, log: l}
}

func (h *DurableSignatureResultCache) GetOrCreate(chainID uint64, groupIndex uint32, requestID [32]byte, message []byte, threshold, grace int) *cache.SignatureResult {
	return h.mem.GetOrCreate(chainID, groupIndex, requestID, message, threshold, grace)
}

func (h *DurableSignatureResultCache) Get(chainID uint64, requestID [32]byte) (*cache.SignatureResult, bool) {
	return h.mem.Get(chainID, requestID)
}

func (h *DurableSignatureResultCache) AddPartial(chainID uint64, requestID [32]byte, addr [20]byte, partial []byte) bool {
	ok := h.mem.AddPartial(chainID, requestID, addr, partial)
	if ok {
		if e, found := h.mem.Get(chainID, requestID); found {
			if err := h.store.SaveSignatureResult(chainID, e); err != nil {
				h.log.Errorw("persist partial", "request_id", requestID, "err", err)
			}
		}
	}
	return ok
}

func (h *DurableSignatureResultCache) TryCommit(chainID uint64, requestID [32]byte) bool {
	ok := h.mem.TryCommit(chainID, requestID)
	if ok {
		if e, found := h.mem.Get(chainID, requestID); found {
			if err := h.store.SaveSignatureResult(chainID, e); err != nil {
				h.log.Errorw("persist commit", "request_id", requestID, "err", err)
			}
		}
	}
	return ok
}

func (h *DurableSignatureResultCache) Uncommit(chainID uint64, requestID [32]byte) {
	h.mem.Uncommit(chainID, requestID)
	if e, found := h.mem.Get(chainID, requestID); found {
		if err := h.store.SaveSignatureResult(chainID, e); err != nil {
			h.log.Errorw("persist uncommit", "request_id", requestID, "err", err)
		}
	}
}

func (h *DurableSignatureResultCache) Ready(chainID uint64) []*cache.SignatureResult {
	return h.mem.Ready(chainID)
}

func (h *DurableSignatureResultCache) Committed(chainID uint64) []*cache.SignatureResult {
	return h.mem.Committed(chainID)
}

func (h *DurableSignatureResultCache) Evict(chainID uint64, requestID [32]byte) {
	h.mem.Evict(chainID, requestID)
	if err := h.store.DeleteSignatureResult(chainID, requestID); err != nil {
		h.log.Errorw("evict persisted signature result", "request_id", requestID, "err", err)
	}
}
