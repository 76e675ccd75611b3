package subscriber

import (
	"context"
	"fmt"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/dkgphase"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/scheduler"
)

// InGroupingSubscriber spawns the DKG phase machine for a freshly
// detected assignment (spec.md §4.4/§4.5). The machine is registered as
// a dynamic task keyed on (group_index, epoch) so a replayed DkgReady
// for the same attempt (the listener polls, it does not consume a
// one-shot log) never starts a second machine alongside one already
// running.
type InGroupingSubscriber struct {
	chainID    uint64
	machine    func() *dkgphase.Machine
	dynamic    *scheduler.DynamicScheduler
	groups     cache.GroupInfoReader
	log        log.Logger
}

// NewInGroupingSubscriber takes machine as a factory, not a built value,
// because the DKG machine binds to state.Group at spawn time and a new
// one must be constructed per attempt (the Coordinator address and
// member set differ across epochs).
func NewInGroupingSubscriber(
	chainID uint64,
	machine func() *dkgphase.Machine,
	dynamic *scheduler.DynamicScheduler,
	groups cache.GroupInfoReader,
	l log.Logger,
) *InGroupingSubscriber {
	return &InGroupingSubscriber{chainID: chainID, machine: machine, dynamic: dynamic, groups: groups, log: l.Named("InGroupingSubscriber")}
}

func (s *InGroupingSubscriber) Register(q *eventqueue.Queue) {
	q.Subscribe(eventqueue.TopicDkgReady(), "InGroupingSubscriber", func(payload interface{}) {
		state, ok := payload.(*key.LocalGroupState)
		if !ok || state.Empty() {
			return
		}
		dkgKey := scheduler.DynamicKey(fmt.Sprintf("dkg/%d/%d/%d", s.chainID, state.Group.Index, state.Group.Epoch))
		started := s.dynamic.Spawn(context.Background(), dkgKey, func(ctx context.Context) {
			s.machine().Run(ctx)
		})
		if started {
			s.log.Infow("dkg phase machine spawned", "group_index", state.Group.Index, "epoch", state.Group.Epoch)
		}
	})
}
