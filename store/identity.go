package store

import (
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
)

var identityKey = []byte("self")

type identityDoc struct {
	IDAddress       string
	NodeRPCEndpoint string
	DKGKey          string
	DKGPublic       string
}

// SaveIdentity persists the node's identity, so a restart recovers the
// same id_address/DKG keypair rather than re-registering (spec.md §3
// NodeIdentity: "Created once at first run").
func (s *Store) SaveIdentity(id *key.Identity) error {
	doc := identityDoc{
		IDAddress:       id.IDAddress.Hex(),
		NodeRPCEndpoint: id.NodeRPCEndpoint,
		DKGKey:          key.ScalarToString(id.DKGKeyPair.Key),
		DKGPublic:       key.PointToString(id.DKGKeyPair.Public),
	}
	return s.putJSON(bucketIdentity, identityKey, doc)
}

// LoadIdentity reads back a previously saved identity, or (false, nil) if
// none has been saved yet (first run).
func (s *Store) LoadIdentity(sch *crypto.Scheme) (*key.Identity, bool, error) {
	var doc identityDoc
	found, err := s.getJSON(bucketIdentity, identityKey, &doc)
	if err != nil || !found {
		return nil, found, err
	}
	sk, err := key.StringToScalar(sch.KeyGroup, doc.DKGKey)
	if err != nil {
		return nil, false, err
	}
	pk, err := key.StringToPoint(sch.KeyGroup, doc.DKGPublic)
	if err != nil {
		return nil, false, err
	}
	return &key.Identity{
		IDAddress:       ethcommon.HexToAddress(doc.IDAddress),
		NodeRPCEndpoint: doc.NodeRPCEndpoint,
		DKGKeyPair:      &key.Pair{Key: sk, Public: pk},
	}, true, nil
}
