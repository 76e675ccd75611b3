// Package key holds the node's long-term identity and the Group/MemberInfo
// data model of spec.md §3, grounded on drand's key.Identity/key.Group but
// re-keyed around an Ethereum id_address instead of a drand network address.
package key

import (
	"encoding/hex"
	"fmt"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/arpa-network/randcast-node/crypto"
)

// Pair is the node's DKG long-term keypair. It may be rotated only while
// the node belongs to no active group (spec.md §3 NodeIdentity invariant).
type Pair struct {
	Key    kyber.Scalar
	Public kyber.Point
}

// NewPair draws a fresh scalar/point pair in the scheme's key group.
func NewPair(s *crypto.Scheme) *Pair {
	k := s.KeyGroup.Scalar().Pick(random.New())
	pub := s.KeyGroup.Point().Mul(k, nil)
	return &Pair{Key: k, Public: pub}
}

// Identity is this node's stable, on-chain identity as registered with the
// Controller: an Ethereum address plus the node's committer-facing gRPC
// endpoint and current DKG public key.
type Identity struct {
	// IDAddress is the immutable Ethereum address identifying this node
	// on-chain. Set once at first run.
	IDAddress ethcommon.Address
	// NodeRPCEndpoint is this node's advertised committer-facing gRPC
	// address (spec.md §6 node_advertised_committer_rpc_endpoint).
	NodeRPCEndpoint string
	// DKGKeyPair is the current DKG keypair. May be rotated only while
	// this node is not a member of an active group.
	DKGKeyPair *Pair
}

// PublicKeyBytes marshals the DKG public key for on-chain registration
// (Controller.nodeRegister/changeDkgPublicKey take the raw bytes).
func (i *Identity) PublicKeyBytes() ([]byte, error) {
	b, err := i.DKGKeyPair.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal dkg public key: %w", err)
	}
	return b, nil
}

// String renders a short debug form: address + key prefix.
func (i *Identity) String() string {
	pk, _ := i.PublicKeyBytes()
	short := hex.EncodeToString(pk)
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s(%s...)", i.IDAddress.Hex(), short)
}
