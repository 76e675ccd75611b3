package key_test

import (
	"math/big"
	"testing"

	"github.com/drand/kyber/share"
	"github.com/drand/kyber/util/random"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
)

func newReadyGroup(t *testing.T, sch *crypto.Scheme, n, thr int) *key.Group {
	t.Helper()
	secret := sch.KeyGroup.Scalar().Pick(random.New())
	pri := share.NewPriPoly(sch.KeyGroup, thr, secret, random.New())
	pub := pri.Commit(sch.KeyGroup.Point().Base())
	_, commits := pub.Info()

	g := key.NewForming(1, 1, n, thr)
	for i := 0; i < n; i++ {
		addr := ethcommon.BigToAddress(big.NewInt(int64(i + 1)))
		g.Members[addr] = &key.MemberInfo{
			Index:            i,
			IDAddress:        addr,
			DKGPublicKey:     sch.KeyGroup.Point().Pick(random.New()),
			PartialPublicKey: pub.Eval(i).V,
		}
		g.Committers[addr] = struct{}{}
	}
	g.Commits = commits
	g.State = key.GroupReady
	return g
}

func TestGroupValidateRejectsThresholdAboveSize(t *testing.T) {
	g := key.NewForming(1, 1, 3, 4)
	require.Error(t, g.Validate())
}

func TestGroupValidateRejectsReadyWithoutPublicKey(t *testing.T) {
	g := key.NewForming(1, 1, 3, 2)
	g.State = key.GroupReady
	require.Error(t, g.Validate())
}

func TestGroupValidateRejectsCommitterNotAMember(t *testing.T) {
	g := key.NewForming(1, 1, 3, 2)
	g.Committers[ethcommon.HexToAddress("0x0000000000000000000000000000000000000009")] = struct{}{}
	require.Error(t, g.Validate())
}

func TestGroupPublicKeyAndPubPoly(t *testing.T) {
	sch := crypto.New()
	g := newReadyGroup(t, sch, 4, 3)
	require.NoError(t, g.Validate())

	require.NotNil(t, g.PublicKey())
	require.True(t, g.PublicKey().Equal(g.Commits[0]))

	pp := g.PubPoly(sch)
	require.NotNil(t, pp)
	_, commits := pp.Info()
	require.Len(t, commits, len(g.Commits))
}

func TestGroupSortedMembersOrderedByIndex(t *testing.T) {
	sch := crypto.New()
	g := newReadyGroup(t, sch, 4, 3)

	sorted := g.SortedMembers()
	require.Len(t, sorted, 4)
	for i, m := range sorted {
		require.Equal(t, i, m.Index)
	}
}

func TestGroupIsCommitter(t *testing.T) {
	sch := crypto.New()
	g := newReadyGroup(t, sch, 3, 2)

	for addr := range g.Committers {
		require.True(t, g.IsCommitter(addr))
	}
	require.False(t, g.IsCommitter(ethcommon.HexToAddress("0x000000000000000000000000000000000000ff")))
}

func TestLocalGroupStateEmpty(t *testing.T) {
	var s *key.LocalGroupState
	require.True(t, s.Empty())

	s = &key.LocalGroupState{}
	require.True(t, s.Empty())

	sch := crypto.New()
	s.Group = newReadyGroup(t, sch, 3, 2)
	require.False(t, s.Empty())
}
