package key_test

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
)

func TestNewPairProducesConsistentPublicKey(t *testing.T) {
	sch := crypto.New()
	pair := key.NewPair(sch)

	expected := sch.KeyGroup.Point().Mul(pair.Key, nil)
	require.True(t, expected.Equal(pair.Public))
}

func TestIdentityPublicKeyBytesRoundTrip(t *testing.T) {
	sch := crypto.New()
	pair := key.NewPair(sch)
	id := &key.Identity{
		IDAddress:       ethcommon.HexToAddress("0x0000000000000000000000000000000000000001"),
		NodeRPCEndpoint: "127.0.0.1:8080",
		DKGKeyPair:      pair,
	}

	b, err := id.PublicKeyBytes()
	require.NoError(t, err)

	pub := sch.KeyGroup.Point()
	require.NoError(t, pub.UnmarshalBinary(b))
	require.True(t, pub.Equal(pair.Public))
}

func TestIdentityStringIncludesAddress(t *testing.T) {
	sch := crypto.New()
	id := &key.Identity{
		IDAddress:  ethcommon.HexToAddress("0x0000000000000000000000000000000000000002"),
		DKGKeyPair: key.NewPair(sch),
	}

	require.Contains(t, id.String(), id.IDAddress.Hex())
}
