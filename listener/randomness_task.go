package listener

import (
	"context"

	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/adapter"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// NewRandomnessTaskListener scans the Adapter for RandomnessRequest
// events since the last scanned block; requests assigned to the local
// group become RandomnessTask entries and NewRandomnessTask is emitted
// (spec.md §4.3).
type NewRandomnessTaskListener struct {
	chainID uint64
	adapter *adapter.Adapter
	ident   *chain.Identity
	tasks   cache.BLSTasksHandler
	groups  cache.GroupInfoHandler
	queue   *eventqueue.Queue
	log     log.Logger
}

func NewNewRandomnessTaskListener(
	chainID uint64,
	a *adapter.Adapter,
	ident *chain.Identity,
	tasks cache.BLSTasksHandler,
	groups cache.GroupInfoHandler,
	queue *eventqueue.Queue,
	l log.Logger,
) *NewRandomnessTaskListener {
	return &NewRandomnessTaskListener{
		chainID: chainID, adapter: a, ident: ident, tasks: tasks, groups: groups, queue: queue,
		log: l.Named("NewRandomnessTaskListener"),
	}
}

func (rl *NewRandomnessTaskListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, rl.log, nil, rl.tick)
}

func (rl *NewRandomnessTaskListener) tick(ctx context.Context) error {
	state := rl.groups.Get()
	if state.Empty() || state.Group.State != key.GroupReady {
		return nil
	}

	latest, err := rl.ident.BlockNumber(ctx)
	if err != nil {
		return err
	}
	from := rl.tasks.LastScannedBlock(rl.chainID)
	if from == 0 {
		from = latest // first run: don't replay all history, start from tip
	} else {
		from++
	}
	if from > latest {
		return nil
	}

	events, err := rl.adapter.FilterRandomnessRequests(ctx, from, latest)
	if err != nil {
		return err
	}

	var newCount int
	for _, ev := range events {
		if ev.GroupIndex != state.Group.Index {
			continue
		}
		t := cache.RandomnessTask{
			RequestID:             ev.RequestID,
			ChainID:               rl.chainID,
			GroupIndex:            ev.GroupIndex,
			Message:               append(append([]byte{}, ev.RequestID[:]...), ev.Seed.Bytes()...),
			AssignmentBlockHeight: ev.BlockNumber.Uint64(),
			State:                 cache.TaskPending,
		}
		if rl.tasks.Add(t) {
			newCount++
		}
	}
	rl.tasks.SetLastScannedBlock(rl.chainID, latest)
	if newCount > 0 {
		rl.queue.Publish(eventqueue.TopicNewRandomnessTask(rl.chainID), newCount)
	}
	return nil
}
