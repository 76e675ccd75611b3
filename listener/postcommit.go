package listener

import (
	"context"

	"github.com/drand/kyber"
	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/controller"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// PostCommitGroupingListener runs only on the main chain. When the
// on-chain group matching the local (index, epoch) reaches
// majority-agreed consensus while local dkg_status is InPhase, it
// transitions local state to CommitSuccess and emits DkgSuccess
// (spec.md §4.3).
type PostCommitGroupingListener struct {
	chainID    uint64
	controller *controller.Controller
	ident      *chain.Identity
	scheme     *crypto.Scheme
	groups     cache.GroupInfoHandler
	queue      *eventqueue.Queue
	log        log.Logger
}

func NewPostCommitGroupingListener(
	chainID uint64,
	ctrl *controller.Controller,
	ident *chain.Identity,
	scheme *crypto.Scheme,
	groups cache.GroupInfoHandler,
	queue *eventqueue.Queue,
	l log.Logger,
) *PostCommitGroupingListener {
	return &PostCommitGroupingListener{
		chainID: chainID, controller: ctrl, ident: ident, scheme: scheme,
		groups: groups, queue: queue, log: l.Named("PostCommitGroupingListener"),
	}
}

func (pl *PostCommitGroupingListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, pl.log, nil, pl.tick)
}

func (pl *PostCommitGroupingListener) tick(ctx context.Context) error {
	state := pl.groups.Get()
	if state.Empty() || state.DKGStatus != key.DKGStatusInPhase {
		return nil
	}
	opts := pl.ident.CallOpts(ctx)
	view, err := pl.controller.GetGroup(opts, state.Group.Index)
	if err != nil {
		return err
	}
	if view.Epoch != state.Group.Epoch || !view.IsStrictlyMajorityConsensusReached {
		return nil
	}

	pubKey := pl.scheme.KeyGroup.Point()
	if err := pubKey.UnmarshalBinary(view.PublicKey); err != nil {
		return err
	}

	var newState *key.LocalGroupState
	pl.groups.Update(func(s *key.LocalGroupState) *key.LocalGroupState {
		if s.Empty() || s.Group.Epoch != view.Epoch || s.DKGStatus != key.DKGStatusInPhase {
			newState = s
			return s
		}
		s.Group.State = key.GroupReady
		if len(s.Group.Commits) == 0 {
			s.Group.Commits = []kyber.Point{pubKey}
		} else {
			s.Group.Commits[0] = pubKey
		}
		s.DKGStatus = key.DKGStatusCommitSuccess
		newState = s
		return s
	})
	pl.log.Infow("dkg committed on-chain", "group_index", state.Group.Index, "epoch", view.Epoch)
	pl.queue.Publish(eventqueue.TopicDkgSuccess(), newState)
	return nil
}
