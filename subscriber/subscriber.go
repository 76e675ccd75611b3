// Package subscriber implements the spec.md §4.4 event handlers: each
// one subscribes to a topic on the shared eventqueue.Queue and reacts by
// mutating a cache and/or spawning a dynamic task. Handlers themselves
// never block — the non-blocking contract the queue's doc comment
// requires of every Handler — so any work heavier than a cache update is
// handed to a scheduler.DynamicScheduler goroutine.
package subscriber

import (
	"fmt"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/scheduler"
)

// BlockSubscriber is the simplest subscriber in the lineup (spec.md §4.4):
// NewBlock has already been applied to BlockInfoCache by the listener
// that published it, so this handler exists only to demonstrate the
// no-side-effect-beyond-cache shape other listeners' subscribers are
// compared against, and to give operators a single log line per new
// height.
type BlockSubscriber struct {
	chainID uint64
	log     log.Logger
}

func NewBlockSubscriber(chainID uint64, l log.Logger) *BlockSubscriber {
	return &BlockSubscriber{chainID: chainID, log: l.Named("BlockSubscriber")}
}

func (s *BlockSubscriber) Register(q *eventqueue.Queue) {
	q.Subscribe(eventqueue.TopicNewBlock(s.chainID), "BlockSubscriber", func(payload interface{}) {
		height, _ := payload.(uint64)
		s.log.Debugw("new block", "chain_id", s.chainID, "height", height)
	})
}

// PreGroupingSubscriber watches DkgReady and logs a warning when it
// arrives while the local group is already ready (spec.md §4.4
// idempotence against an already-ready group). It only logs: the event
// still reaches every other DkgReady subscriber, InGroupingSubscriber
// included.
type PreGroupingSubscriber struct {
	groups cache.GroupInfoReader
	log    log.Logger
}

func NewPreGroupingSubscriber(groups cache.GroupInfoReader, l log.Logger) *PreGroupingSubscriber {
	return &PreGroupingSubscriber{groups: groups, log: l.Named("PreGroupingSubscriber")}
}

func (s *PreGroupingSubscriber) Register(q *eventqueue.Queue) {
	q.Subscribe(eventqueue.TopicDkgReady(), "PreGroupingSubscriber", func(payload interface{}) {
		state := s.groups.Get()
		if state.Empty() {
			return
		}
		if state.Group.State == key.GroupReady {
			s.log.Warnw("dropping DkgReady for an already-ready group", "group_index", state.Group.Index, "epoch", state.Group.Epoch)
		}
	})
}

func dynamicTaskKey(chainID uint64, requestID [32]byte) scheduler.DynamicKey {
	return scheduler.DynamicKey(fmt.Sprintf("%d/%x", chainID, requestID))
}
