package listener

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

func readyGroupState(index uint32) *key.LocalGroupState {
	g := key.NewForming(index, 1, 3, 2)
	g.State = key.GroupReady
	return &key.LocalGroupState{Group: g}
}

func TestReadyToHandleListenerEmitsOwnGroupTaskImmediately(t *testing.T) {
	blocks := cache.NewInMemoryBlockInfo()
	tasks := cache.NewInMemoryBLSTasks()
	groups := cache.NewInMemoryGroupInfo()
	groups.Update(func(*key.LocalGroupState) *key.LocalGroupState { return readyGroupState(1) })
	blocks.SetHeight(1, 100, time.Now())

	reqID := [32]byte{1}
	tasks.Add(cache.RandomnessTask{RequestID: reqID, ChainID: 1, GroupIndex: 1, AssignmentBlockHeight: 100})

	queue := eventqueue.New(log.DefaultLogger())
	var got []cache.RandomnessTask
	queue.Subscribe(eventqueue.TopicReadyToHandleRandomnessTask(1), "test", func(payload interface{}) {
		got = payload.([]cache.RandomnessTask)
	})

	l := NewReadyToHandleRandomnessTaskListener(1, 10, blocks, tasks, groups, queue, log.DefaultLogger())
	require.NoError(t, l.tick())

	require.Len(t, got, 1)
	require.Equal(t, reqID, got[0].RequestID)
}

func TestReadyToHandleListenerWithholdsOtherGroupTaskUntilWindowElapses(t *testing.T) {
	blocks := cache.NewInMemoryBlockInfo()
	tasks := cache.NewInMemoryBLSTasks()
	groups := cache.NewInMemoryGroupInfo()
	groups.Update(func(*key.LocalGroupState) *key.LocalGroupState { return readyGroupState(1) })

	reqID := [32]byte{2}
	tasks.Add(cache.RandomnessTask{RequestID: reqID, ChainID: 1, GroupIndex: 2, AssignmentBlockHeight: 100})

	queue := eventqueue.New(log.DefaultLogger())
	var calls int
	queue.Subscribe(eventqueue.TopicReadyToHandleRandomnessTask(1), "test", func(interface{}) { calls++ })

	l := NewReadyToHandleRandomnessTaskListener(1, 10, blocks, tasks, groups, queue, log.DefaultLogger())

	blocks.SetHeight(1, 105, time.Now()) // still inside the exclusivity window
	require.NoError(t, l.tick())
	require.Equal(t, 0, calls)

	blocks.SetHeight(1, 110, time.Now()) // window elapsed: any ready group may steal
	require.NoError(t, l.tick())
	require.Equal(t, 1, calls)
}

func TestReadyToHandleListenerDoesNotRepublishAlreadySeenRequest(t *testing.T) {
	blocks := cache.NewInMemoryBlockInfo()
	tasks := cache.NewInMemoryBLSTasks()
	groups := cache.NewInMemoryGroupInfo()
	groups.Update(func(*key.LocalGroupState) *key.LocalGroupState { return readyGroupState(1) })
	blocks.SetHeight(1, 100, time.Now())

	reqID := [32]byte{3}
	tasks.Add(cache.RandomnessTask{RequestID: reqID, ChainID: 1, GroupIndex: 1, AssignmentBlockHeight: 100})

	queue := eventqueue.New(log.DefaultLogger())
	var calls int
	queue.Subscribe(eventqueue.TopicReadyToHandleRandomnessTask(1), "test", func(interface{}) { calls++ })

	l := NewReadyToHandleRandomnessTaskListener(1, 10, blocks, tasks, groups, queue, log.DefaultLogger())
	require.NoError(t, l.tick())
	require.Equal(t, 1, calls)

	// simulate the same request still being observed as pending (e.g. a
	// racing re-add before MarkHandled's write is visible): the seen-cache
	// guard must suppress a second publish even though MarkHandled already
	// usually prevents this via Pending() filtering.
	l.seen.Add(reqID, struct{}{})
	require.NoError(t, l.tick())
	require.Equal(t, 1, calls)
}

func TestReadyToHandleListenerNoopWhenGroupNotReady(t *testing.T) {
	blocks := cache.NewInMemoryBlockInfo()
	tasks := cache.NewInMemoryBLSTasks()
	groups := cache.NewInMemoryGroupInfo()

	queue := eventqueue.New(log.DefaultLogger())
	var calls int
	queue.Subscribe(eventqueue.TopicReadyToHandleRandomnessTask(1), "test", func(interface{}) { calls++ })

	l := NewReadyToHandleRandomnessTaskListener(1, 10, blocks, tasks, groups, queue, log.DefaultLogger())
	require.NoError(t, l.tick())
	require.Equal(t, 0, calls)
}
