package listener

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/contracts/relayer"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// GroupRelayConfirmationListener runs on each relayed chain. It polls
// the local ControllerRelayer for the epoch last pushed by
// PostGroupingSubscriber's relay task and, once it matches the local
// group's epoch, publishes GroupRelayConfirmed for that chain (SPEC_FULL
// §12, supplemented from original_source/). Nothing subscribes to
// GroupRelayConfirmed: randomness task discovery on the chain does not
// wait for the confirmation.
type GroupRelayConfirmationListener struct {
	chainID uint64
	relayer *relayer.Relayer
	groups  cache.GroupInfoHandler
	queue   *eventqueue.Queue
	log     log.Logger

	confirmedEpoch uint32
}

func NewGroupRelayConfirmationListener(chainID uint64, r *relayer.Relayer, groups cache.GroupInfoHandler, queue *eventqueue.Queue, l log.Logger) *GroupRelayConfirmationListener {
	return &GroupRelayConfirmationListener{chainID: chainID, relayer: r, groups: groups, queue: queue, log: l.Named("GroupRelayConfirmationListener")}
}

func (gl *GroupRelayConfirmationListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, gl.log, nil, gl.tick)
}

func (gl *GroupRelayConfirmationListener) tick(ctx context.Context) error {
	state := gl.groups.Get()
	if state.Empty() || state.DKGStatus != key.DKGStatusCommitSuccess {
		return nil
	}
	epoch, err := gl.relayer.GetGroupEpoch(&bind.CallOpts{Context: ctx})
	if err != nil {
		return err
	}
	if epoch == state.Group.Epoch && epoch != gl.confirmedEpoch {
		gl.confirmedEpoch = epoch
		gl.log.Infow("group relay confirmed", "chain_id", gl.chainID, "epoch", epoch)
		gl.queue.Publish(eventqueue.TopicGroupRelayConfirmed(gl.chainID), epoch)
	}
	return nil
}
