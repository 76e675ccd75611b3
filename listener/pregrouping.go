package listener

import (
	"context"
	"fmt"

	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/controller"
	"github.com/arpa-network/randcast-node/contracts/coordinator"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// PreGroupingListener runs only on the main chain. It detects a new DKG
// assignment by polling Controller.getBelongingGroup for self, and, when
// found while the local dkg_status is None, pulls the group's Coordinator
// handle and publishes DkgReady (spec.md §4.3 PreGroupingListener).
//
// A view-based poll is used in place of watching the Controller's
// DKGTask event log directly: the on-chain Group tuple layout is an
// external collaborator's concern, out of this specification's scope, so
// membership is instead derived from getBelongingGroup + getCoordinator
// (both already part of the bound ABI surface).
type PreGroupingListener struct {
	chainID    uint64
	self       func() *key.Identity
	controller *controller.Controller
	ident      *chain.Identity
	scheme     *crypto.Scheme
	groups     cache.GroupInfoHandler
	blocks     cache.BlockInfoHandler
	queue      *eventqueue.Queue
	threshold  func(size int) int
	log        log.Logger
}

func NewPreGroupingListener(
	chainID uint64,
	self func() *key.Identity,
	ctrl *controller.Controller,
	ident *chain.Identity,
	scheme *crypto.Scheme,
	groups cache.GroupInfoHandler,
	blocks cache.BlockInfoHandler,
	queue *eventqueue.Queue,
	threshold func(size int) int,
	l log.Logger,
) *PreGroupingListener {
	return &PreGroupingListener{
		chainID: chainID, self: self, controller: ctrl, ident: ident, scheme: scheme,
		groups: groups, blocks: blocks, queue: queue, threshold: threshold,
		log: l.Named("PreGroupingListener"),
	}
}

func (pl *PreGroupingListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, pl.log, nil, pl.tick)
}

func (pl *PreGroupingListener) tick(ctx context.Context) error {
	state := pl.groups.Get()
	if !state.Empty() && state.DKGStatus != key.DKGStatusNone {
		return nil
	}

	self := pl.self()
	if self == nil {
		return nil
	}
	opts := pl.ident.CallOpts(ctx)
	groupIndex, memberIndex, err := pl.controller.GetBelongingGroup(opts, self.IDAddress)
	if err != nil {
		return err
	}
	if groupIndex.Sign() < 0 {
		return nil // not assigned to a group yet
	}

	epoch, err := pl.controller.GetGroupEpoch(opts)
	if err != nil {
		return err
	}
	coordAddr, err := pl.controller.GetCoordinator(opts, uint32(groupIndex.Int64()))
	if err != nil {
		return err
	}
	coord, err := coordinator.New(coordAddr, pl.ident.Client())
	if err != nil {
		return err
	}
	participants, err := coord.GetParticipants(opts)
	if err != nil {
		return err
	}
	startBlock, err := coord.StartBlock(opts)
	if err != nil {
		return err
	}

	size := len(participants)
	g := key.NewForming(uint32(groupIndex.Int64()), epoch, size, pl.threshold(size))
	g.CoordinatorAddress = coordAddr
	for i, addr := range participants {
		node, err := pl.controller.GetNode(opts, addr)
		if err != nil {
			return err
		}
		pub := pl.scheme.KeyGroup.Point()
		if err := pub.UnmarshalBinary(node.DKGPublicKey); err != nil {
			return fmt.Errorf("unmarshal dkg public key for %s: %w", addr.Hex(), err)
		}
		g.Members[addr] = &key.MemberInfo{Index: i, IDAddress: addr, RPCEndpoint: node.RPCEndpoint, DKGPublicKey: pub}
	}

	newState := &key.LocalGroupState{
		Group:               g,
		SelfIndex:           int(memberIndex.Int64()),
		DKGStatus:           key.DKGStatusInPhase,
		DKGStartBlockHeight: startBlock.Uint64(),
	}
	pl.groups.Update(func(*key.LocalGroupState) *key.LocalGroupState { return newState })
	pl.log.Infow("dkg assignment detected", "group_index", g.Index, "epoch", g.Epoch, "self_index", newState.SelfIndex)
	pl.queue.Publish(eventqueue.TopicDkgReady(), newState)
	return nil
}
