package store

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/arpa-network/randcast-node/cache"
)

func sigKey(chainID uint64, requestID [32]byte) []byte {
	k := make([]byte, 8+32)
	binary.BigEndian.PutUint64(k, chainID)
	copy(k[8:], requestID[:])
	return k
}

type signatureDoc struct {
	GroupIndex uint32
	RequestID  string
	Message    string
	Threshold  int
	Grace      int
	Partials   map[string]string // hex id_address -> hex partial sig
	Committed  bool
}

// SaveSignatureResult persists a SignatureResultCache entry. No load
// path reads these entries back (see NewDurableSignatureResultCache).
func (s *Store) SaveSignatureResult(chainID uint64, e *cache.SignatureResult) error {
	doc := signatureDoc{
		GroupIndex: e.GroupIndex,
		RequestID:  hex.EncodeToString(e.RequestID[:]),
		Message:    hex.EncodeToString(e.Message),
		Threshold:  e.Threshold,
		Grace:      e.Grace,
		Partials:   make(map[string]string, len(e.Partials)),
		Committed:  e.Committed,
	}
	for addr, partial := range e.Partials {
		doc.Partials[hex.EncodeToString(addr[:])] = hex.EncodeToString(partial)
	}
	return s.putJSON(bucketSignatures, sigKey(chainID, e.RequestID), doc)
}

// DeleteSignatureResult removes a persisted entry (mirrors
// cache.SignatureResultCacheHandler.Evict).
func (s *Store) DeleteSignatureResult(chainID uint64, requestID [32]byte) error {
	return s.del(bucketSignatures, sigKey(chainID, requestID))
}
