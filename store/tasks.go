package store

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/arpa-network/randcast-node/cache"
)

func taskKey(chainID uint64, requestID [32]byte) []byte {
	k := make([]byte, 8+32)
	binary.BigEndian.PutUint64(k, chainID)
	copy(k[8:], requestID[:])
	return k
}

type taskDoc struct {
	RequestID             string
	ChainID               uint64
	GroupIndex            uint32
	Message               string
	AssignmentBlockHeight uint64
	State                 int
}

// SaveTask persists one discovered randomness task.
func (s *Store) SaveTask(t cache.RandomnessTask) error {
	doc := taskDoc{
		RequestID:             hex.EncodeToString(t.RequestID[:]),
		ChainID:               t.ChainID,
		GroupIndex:            t.GroupIndex,
		Message:               hex.EncodeToString(t.Message),
		AssignmentBlockHeight: t.AssignmentBlockHeight,
		State:                 int(t.State),
	}
	return s.putJSON(bucketTasks, taskKey(t.ChainID, t.RequestID), doc)
}

// LoadTasks reads back every persisted task for chainID, used to warm the
// in-memory BLSTasksHandler on restart.
func (s *Store) LoadTasks(chainID uint64) ([]cache.RandomnessTask, error) {
	var out []cache.RandomnessTask
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, chainID)
	err := s.forEach(bucketTasks, func(k, v []byte) error {
		if len(k) < 8 || string(k[:8]) != string(prefix) {
			return nil
		}
		var doc taskDoc
		if err := json.Unmarshal(v, &doc); err != nil {
			return fmt.Errorf("decode task %x: %w", k, err)
		}
		reqID, err := hex.DecodeString(doc.RequestID)
		if err != nil {
			return err
		}
		msg, err := hex.DecodeString(doc.Message)
		if err != nil {
			return err
		}
		var t cache.RandomnessTask
		copy(t.RequestID[:], reqID)
		t.ChainID = doc.ChainID
		t.GroupIndex = doc.GroupIndex
		t.Message = msg
		t.AssignmentBlockHeight = doc.AssignmentBlockHeight
		t.State = cache.TaskState(doc.State)
		out = append(out, t)
		return nil
	})
	return out, err
}

// SaveLastScannedBlock persists NewRandomnessTaskListener's resume cursor
// (SPEC_FULL §12).
func (s *Store) SaveLastScannedBlock(chainID uint64, height uint64) error {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, chainID)
	return s.putJSON(bucketLastBlock, k, height)
}

// LoadLastScannedBlock reads back the resume cursor, or 0 if none saved.
func (s *Store) LoadLastScannedBlock(chainID uint64) (uint64, error) {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, chainID)
	var height uint64
	_, err := s.getJSON(bucketLastBlock, k, &height)
	return height, err
}
