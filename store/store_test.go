package store_test

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/store"
)

func addr(n int64) ethcommon.Address {
	return ethcommon.BigToAddress(big.NewInt(n))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir(), log.DefaultLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreLoadIdentityMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)
	sch := crypto.New()

	_, found, err := s.LoadIdentity(sch)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreSaveAndLoadIdentityRoundTrips(t *testing.T) {
	s := openTestStore(t)
	sch := crypto.New()
	pair := key.NewPair(sch)
	id := &key.Identity{IDAddress: addr(1), NodeRPCEndpoint: "127.0.0.1:9000", DKGKeyPair: pair}

	require.NoError(t, s.SaveIdentity(id))

	got, found, err := s.LoadIdentity(sch)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, id.IDAddress, got.IDAddress)
	require.Equal(t, id.NodeRPCEndpoint, got.NodeRPCEndpoint)
	require.True(t, pair.Public.Equal(got.DKGKeyPair.Public))
	require.True(t, pair.Key.Equal(got.DKGKeyPair.Key))
}

func TestStoreSaveAndLoadTasks(t *testing.T) {
	s := openTestStore(t)
	t1 := cache.RandomnessTask{RequestID: [32]byte{1}, ChainID: 1, Message: []byte("m1"), State: cache.TaskPending}
	t2 := cache.RandomnessTask{RequestID: [32]byte{2}, ChainID: 1, Message: []byte("m2"), State: cache.TaskHandled}
	other := cache.RandomnessTask{RequestID: [32]byte{3}, ChainID: 2, Message: []byte("m3"), State: cache.TaskPending}

	require.NoError(t, s.SaveTask(t1))
	require.NoError(t, s.SaveTask(t2))
	require.NoError(t, s.SaveTask(other))

	loaded, err := s.LoadTasks(1)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
}

func TestStoreLastScannedBlockDefaultsToZero(t *testing.T) {
	s := openTestStore(t)
	height, err := s.LoadLastScannedBlock(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)

	require.NoError(t, s.SaveLastScannedBlock(1, 123))
	height, err = s.LoadLastScannedBlock(1)
	require.NoError(t, err)
	require.Equal(t, uint64(123), height)
}

func TestDurableNodeInfoWarmsFromPersistedIdentity(t *testing.T) {
	s := openTestStore(t)
	sch := crypto.New()
	pair := key.NewPair(sch)
	id := &key.Identity{IDAddress: addr(2), DKGKeyPair: pair}
	require.NoError(t, s.SaveIdentity(id))

	durable, existed, err := store.NewDurableNodeInfo(cache.NewInMemoryNodeInfo(), s, sch, log.DefaultLogger())
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, id.IDAddress, durable.Identity().IDAddress)
}

func TestDurableNodeInfoFreshStoreHasNoIdentity(t *testing.T) {
	s := openTestStore(t)
	sch := crypto.New()

	durable, existed, err := store.NewDurableNodeInfo(cache.NewInMemoryNodeInfo(), s, sch, log.DefaultLogger())
	require.NoError(t, err)
	require.False(t, existed)
	require.Nil(t, durable.Identity())
}

func TestStoreSaveAndLoadGroupState(t *testing.T) {
	s := openTestStore(t)
	sch := crypto.New()

	g := key.NewForming(1, 1, 3, 2)
	g.Members[addr(1)] = &key.MemberInfo{Index: 0, IDAddress: addr(1), RPCEndpoint: "127.0.0.1:1"}
	g.Members[addr(2)] = &key.MemberInfo{Index: 1, IDAddress: addr(2), RPCEndpoint: "127.0.0.1:2"}
	g.Members[addr(3)] = &key.MemberInfo{Index: 2, IDAddress: addr(3), RPCEndpoint: "127.0.0.1:3"}
	state := &key.LocalGroupState{Group: g, SelfIndex: 0, DKGStatus: key.DKGStatusInPhase}

	require.NoError(t, s.SaveGroupState(state))

	loaded, found, err := s.LoadGroupState(sch)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, g.Index, loaded.Group.Index)
	require.Equal(t, g.Threshold, loaded.Group.Threshold)
	require.Len(t, loaded.Group.Members, 3)
	require.Equal(t, key.DKGStatusInPhase, loaded.DKGStatus)
}

func TestStoreSaveGroupStateEmptyDeletesEntry(t *testing.T) {
	s := openTestStore(t)
	sch := crypto.New()

	g := key.NewForming(1, 1, 2, 1)
	require.NoError(t, s.SaveGroupState(&key.LocalGroupState{Group: g}))

	require.NoError(t, s.SaveGroupState(&key.LocalGroupState{}))

	_, found, err := s.LoadGroupState(sch)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDurableGroupInfoWarmsFromPersistedState(t *testing.T) {
	s := openTestStore(t)
	sch := crypto.New()
	g := key.NewForming(2, 1, 2, 1)
	require.NoError(t, s.SaveGroupState(&key.LocalGroupState{Group: g, DKGStatus: key.DKGStatusInPhase}))

	durable, err := store.NewDurableGroupInfo(cache.NewInMemoryGroupInfo(), s, sch, log.DefaultLogger())
	require.NoError(t, err)
	require.False(t, durable.Get().Empty())
	require.Equal(t, uint32(2), durable.Get().Group.Index)
}

func TestDurableSignatureResultCachePersistsPartials(t *testing.T) {
	s := openTestStore(t)
	d := store.NewDurableSignatureResultCache(cache.NewInMemorySignatureResultCache(), s, log.DefaultLogger())
	reqID := [32]byte{1}
	d.GetOrCreate(1, 1, reqID, []byte("msg"), 1, 0)

	var a [20]byte
	a[0] = 1
	require.True(t, d.AddPartial(1, reqID, a, []byte("sig")))
	require.True(t, d.TryCommit(1, reqID))

	// no load-on-restart path exists for signatures; persistence is
	// write-only (SaveSignatureResult/DeleteSignatureResult). This checks
	// that the writes go through the wrapper and that Evict removes the
	// entry from the wrapped cache; a failed bbolt delete is only logged.
	d.Evict(1, reqID)
	_, ok := d.Get(1, reqID)
	require.False(t, ok)
}

func TestDurableBLSTasksPersistsAcrossInstances(t *testing.T) {
	s := openTestStore(t)
	d, err := store.NewDurableBLSTasks(cache.NewInMemoryBLSTasks(), s, []uint64{1}, log.DefaultLogger())
	require.NoError(t, err)

	require.True(t, d.Add(cache.RandomnessTask{RequestID: [32]byte{1}, ChainID: 1, State: cache.TaskPending}))
	d.SetLastScannedBlock(1, 7)

	reopened, err := store.NewDurableBLSTasks(cache.NewInMemoryBLSTasks(), s, []uint64{1}, log.DefaultLogger())
	require.NoError(t, err)
	require.Equal(t, uint64(7), reopened.LastScannedBlock(1))

	_, ok := reopened.Get(1, [32]byte{1})
	require.True(t, ok)
}
