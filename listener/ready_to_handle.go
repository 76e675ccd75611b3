package listener

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// seenRequestsCacheSize bounds the recently-published request_id guard
// below; MarkHandled already removes a task from Pending(), so this only
// protects against republishing the same request during the narrow
// window between a tick reading Pending() and calling MarkHandled.
const seenRequestsCacheSize = 4096

// ReadyToHandleRandomnessTaskListener computes, from the local pending
// task queue and current block height, which tasks this node's group may
// now handle: the assigned group is the exclusive handler during
// [assignment_block, assignment_block+window), after which any ready
// group may steal it (spec.md §4.3/§4.7).
type ReadyToHandleRandomnessTaskListener struct {
	chainID         uint64
	exclusiveWindow uint64
	blocks          cache.BlockInfoHandler
	tasks           cache.BLSTasksHandler
	groups          cache.GroupInfoHandler
	queue           *eventqueue.Queue
	seen            *lru.Cache
	log             log.Logger
}

func NewReadyToHandleRandomnessTaskListener(
	chainID uint64,
	exclusiveWindow uint64,
	blocks cache.BlockInfoHandler,
	tasks cache.BLSTasksHandler,
	groups cache.GroupInfoHandler,
	queue *eventqueue.Queue,
	l log.Logger,
) *ReadyToHandleRandomnessTaskListener {
	seen, _ := lru.New(seenRequestsCacheSize) // size is a positive constant: never errors
	return &ReadyToHandleRandomnessTaskListener{
		chainID: chainID, exclusiveWindow: exclusiveWindow, blocks: blocks, tasks: tasks, groups: groups, queue: queue,
		seen: seen, log: l.Named("ReadyToHandleRandomnessTaskListener"),
	}
}

func (rl *ReadyToHandleRandomnessTaskListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, rl.log, nil, func(ctx context.Context) error { return rl.tick() })
}

func (rl *ReadyToHandleRandomnessTaskListener) tick() error {
	state := rl.groups.Get()
	if state.Empty() || state.Group.State != key.GroupReady {
		return nil
	}
	info, ok := rl.blocks.Height(rl.chainID)
	if !ok {
		return nil
	}

	eligible := make([]cache.RandomnessTask, 0)
	for _, t := range rl.tasks.Pending(rl.chainID) {
		if rl.seen.Contains(t.RequestID) {
			continue
		}
		if rl.canHandle(t, state.Group.Index, info.Height) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	for _, t := range eligible {
		rl.tasks.MarkHandled(rl.chainID, t.RequestID) // idempotent: Add already deduped on request_id
		rl.seen.Add(t.RequestID, struct{}{})
	}
	rl.queue.Publish(eventqueue.TopicReadyToHandleRandomnessTask(rl.chainID), eligible)
	return nil
}

func (rl *ReadyToHandleRandomnessTaskListener) canHandle(t cache.RandomnessTask, selfGroupIndex uint32, height uint64) bool {
	if t.GroupIndex == selfGroupIndex {
		return true // exclusive or post-exclusivity: the assigned group may always handle its own task
	}
	return height >= t.AssignmentBlockHeight+rl.exclusiveWindow // exclusivity window elapsed: any ready group may steal
}
