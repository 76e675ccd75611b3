// Package store provides bbolt-backed durable persistence for the node's
// caches, mirroring the in-memory-cache/durable-store split and bucket
// layout of drand's chain/boltdb (_examples/drand-drand/chain/boltdb/store.go),
// adapted from drand's single beacon bucket to this node's multiple
// independent buckets (identity, group, tasks, signatures).
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/arpa-network/randcast-node/log"
)

// FileName is the bbolt database file name written under the node's data
// directory.
const FileName = "randcast.db"

// FileMode is the permission used when opening the database file.
const FileMode = 0660

var (
	bucketIdentity   = []byte("identity")
	bucketGroup      = []byte("group")
	bucketTasks      = []byte("tasks")
	bucketLastBlock  = []byte("last_scanned_block")
	bucketSignatures = []byte("signatures")
)

// Store wraps a single bbolt database holding all of this node's durable
// state, one bucket per cache kind.
type Store struct {
	db  *bolt.DB
	log log.Logger
}

// Open opens (creating if absent) the bbolt database under dir and
// ensures every bucket this package uses exists.
func Open(dir string, l log.Logger) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dir, FileName), FileMode, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketIdentity, bucketGroup, bucketTasks, bucketLastBlock, bucketSignatures} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &Store{db: db, log: l}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) putJSON(bucket, key []byte, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, buf)
	})
}

func (s *Store) getJSON(bucket, key []byte, v interface{}) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(key)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, v)
	})
	return found, err
}

func (s *Store) forEach(bucket []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(fn)
	})
}

func (s *Store) del(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}
