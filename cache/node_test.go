package cache

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
)

func TestInMemoryNodeInfoStartsNil(t *testing.T) {
	h := NewInMemoryNodeInfo()
	require.Nil(t, h.Identity())
}

func TestInMemoryNodeInfoSetIdentity(t *testing.T) {
	h := NewInMemoryNodeInfo()
	sch := crypto.New()
	id := &key.Identity{IDAddress: ethcommon.HexToAddress("0x1"), DKGKeyPair: key.NewPair(sch)}

	h.SetIdentity(id)
	require.Equal(t, id, h.Identity())
}

func TestInMemoryNodeInfoRotateDKGKeyPair(t *testing.T) {
	h := NewInMemoryNodeInfo()
	sch := crypto.New()
	id := &key.Identity{IDAddress: ethcommon.HexToAddress("0x1"), DKGKeyPair: key.NewPair(sch)}
	h.SetIdentity(id)

	newPair := key.NewPair(sch)
	h.RotateDKGKeyPair(newPair)

	require.Same(t, newPair, h.Identity().DKGKeyPair)
}

func TestInMemoryNodeInfoRotateBeforeIdentitySetIsNoop(t *testing.T) {
	h := NewInMemoryNodeInfo()
	sch := crypto.New()
	require.NotPanics(t, func() { h.RotateDKGKeyPair(key.NewPair(sch)) })
	require.Nil(t, h.Identity())
}
