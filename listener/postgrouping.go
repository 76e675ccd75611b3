package listener

import (
	"context"

	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// DkgPostProcessPayload is DkgPostProcess's event payload (spec.md §4.3).
type DkgPostProcessPayload struct {
	GroupIndex uint32
	Epoch      uint32
}

// PostGroupingListener runs only on the main chain. Once the DKG timeout
// window elapses while local dkg_status is still InPhase or
// CommitSuccess, it emits DkgPostProcess and moves local state to
// WaitForPostProcess (spec.md §4.3).
type PostGroupingListener struct {
	chainID       uint64
	timeoutBlocks uint64
	blocks        cache.BlockInfoHandler
	groups        cache.GroupInfoHandler
	queue         *eventqueue.Queue
	log           log.Logger
}

func NewPostGroupingListener(chainID uint64, timeoutBlocks uint64, blocks cache.BlockInfoHandler, groups cache.GroupInfoHandler, queue *eventqueue.Queue, l log.Logger) *PostGroupingListener {
	return &PostGroupingListener{
		chainID: chainID, timeoutBlocks: timeoutBlocks, blocks: blocks, groups: groups, queue: queue,
		log: l.Named("PostGroupingListener"),
	}
}

func (pl *PostGroupingListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, pl.log, nil, func(ctx context.Context) error { return pl.tick(ctx) })
}

func (pl *PostGroupingListener) tick(_ context.Context) error {
	state := pl.groups.Get()
	if state.Empty() || (state.DKGStatus != key.DKGStatusInPhase && state.DKGStatus != key.DKGStatusCommitSuccess) {
		return nil
	}
	info, ok := pl.blocks.Height(pl.chainID)
	if !ok {
		return nil
	}
	if info.Height < state.DKGStartBlockHeight+pl.timeoutBlocks {
		return nil
	}

	var payload DkgPostProcessPayload
	transitioned := false
	pl.groups.Update(func(s *key.LocalGroupState) *key.LocalGroupState {
		if s.Empty() || (s.DKGStatus != key.DKGStatusInPhase && s.DKGStatus != key.DKGStatusCommitSuccess) {
			return s
		}
		payload = DkgPostProcessPayload{GroupIndex: s.Group.Index, Epoch: s.Group.Epoch}
		s.DKGStatus = key.DKGStatusWaitForPostProcess
		transitioned = true
		return s
	})
	if !transitioned {
		return nil
	}
	pl.log.Infow("dkg timeout reached", "group_index", payload.GroupIndex, "epoch", payload.Epoch)
	pl.queue.Publish(eventqueue.TopicDkgPostProcess(), payload)
	return nil
}
