package subscriber

import (
	"context"
	"fmt"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/controller"
	"github.com/arpa-network/randcast-node/contracts/relayer"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/listener"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/scheduler"
)

// RelayTarget is one configured relayed chain this node pushes the main
// chain's group identity to (SPEC_FULL §12, supplemented from
// original_source/).
type RelayTarget struct {
	ChainID uint64
	Ident   *chain.Identity
	Relayer *relayer.Relayer
}

// PostGroupingSubscriber runs only against the main chain (spec.md
// §4.4): on DkgPostProcess it submits post_process_dkg, which slashes
// whichever members never committed a Phase-4 output, and — since the
// Controller call already tells us the group reached majority consensus
// by the time DkgSuccess fired earlier in the pipeline — pushes the new
// group identity to every relayed chain.
type PostGroupingSubscriber struct {
	controller *controller.Controller
	ident      *chain.Identity
	groups     cache.GroupInfoReader
	relayed    []RelayTarget
	dynamic    *scheduler.DynamicScheduler
	log        log.Logger
}

func NewPostGroupingSubscriber(
	ctrl *controller.Controller,
	ident *chain.Identity,
	groups cache.GroupInfoReader,
	relayed []RelayTarget,
	dynamic *scheduler.DynamicScheduler,
	l log.Logger,
) *PostGroupingSubscriber {
	return &PostGroupingSubscriber{controller: ctrl, ident: ident, groups: groups, relayed: relayed, dynamic: dynamic, log: l.Named("PostGroupingSubscriber")}
}

func (s *PostGroupingSubscriber) Register(q *eventqueue.Queue) {
	q.Subscribe(eventqueue.TopicDkgPostProcess(), "PostGroupingSubscriber", func(payload interface{}) {
		ev, ok := payload.(listener.DkgPostProcessPayload)
		if !ok {
			return
		}
		relayKey := scheduler.DynamicKey(fmt.Sprintf("postprocess/%d/%d", ev.GroupIndex, ev.Epoch))
		s.dynamic.Spawn(context.Background(), relayKey, func(ctx context.Context) {
			s.run(ctx, ev)
		})
	})
}

func (s *PostGroupingSubscriber) run(ctx context.Context, ev listener.DkgPostProcessPayload) {
	opts, err := s.ident.TransactOpts(ctx)
	if err != nil {
		s.log.Errorw("build post_process_dkg transactor", "error", err)
		return
	}
	if _, err := s.controller.PostProcessDkg(opts, ev.GroupIndex, ev.Epoch); err != nil {
		s.log.Errorw("post_process_dkg failed", "group_index", ev.GroupIndex, "epoch", ev.Epoch, "error", err)
		return
	}
	s.log.Infow("post_process_dkg submitted", "group_index", ev.GroupIndex, "epoch", ev.Epoch)

	state := s.groups.Get()
	if state.Empty() || state.Group.Epoch != ev.Epoch || len(state.Group.Commits) == 0 {
		return
	}
	publicKey, err := state.Group.PublicKey().MarshalBinary()
	if err != nil {
		s.log.Errorw("marshal group public key for relay", "error", err)
		return
	}
	for _, target := range s.relayed {
		relayKey := scheduler.DynamicKey(fmt.Sprintf("grouprelay/%d/%d/%d", target.ChainID, ev.GroupIndex, ev.Epoch))
		t := target
		s.dynamic.Spawn(ctx, relayKey, func(ctx context.Context) {
			s.pushRelay(ctx, t, ev.GroupIndex, ev.Epoch, publicKey)
		})
	}
}

func (s *PostGroupingSubscriber) pushRelay(ctx context.Context, target RelayTarget, groupIndex, epoch uint32, publicKey []byte) {
	opts, err := target.Ident.TransactOpts(ctx)
	if err != nil {
		s.log.Errorw("build group relay transactor", "chain_id", target.ChainID, "error", err)
		return
	}
	if err := target.Relayer.SetGroupRelay(opts, groupIndex, epoch, publicKey); err != nil {
		s.log.Errorw("group relay push failed", "chain_id", target.ChainID, "group_index", groupIndex, "epoch", epoch, "error", err)
		return
	}
	s.log.Infow("group relay pushed", "chain_id", target.ChainID, "group_index", groupIndex, "epoch", epoch)
}
