package dkgphase

import (
	"context"
	"fmt"
	"time"

	"github.com/drand/kyber"
	dkgpedersen "github.com/drand/kyber/share/dkg/pedersen"
	ethcommon "github.com/ethereum/go-ethereum/common"
	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/controller"
	"github.com/arpa-network/randcast-node/contracts/coordinator"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
)

// Machine runs one member's side of a single DKG attempt for one group
// from Phase 1 (share) through Phase 4 (output + commit). One Machine is
// spawned per grouping attempt as a dynamic task (keyed on
// (chain_id, group_index/epoch)) by InGroupingSubscriber; it returns once
// the attempt either commits or the Coordinator reports it has ended
// without this node reaching a certified share.
type Machine struct {
	chainID uint64
	ident   *chain.Identity
	scheme  *crypto.Scheme
	self    *key.Identity

	controller *controller.Controller
	groups     cache.GroupInfoHandler

	clock        cl.Clock
	pollInterval time.Duration
	log          log.Logger
}

func New(
	chainID uint64,
	ident *chain.Identity,
	scheme *crypto.Scheme,
	self *key.Identity,
	ctrl *controller.Controller,
	groups cache.GroupInfoHandler,
	clock cl.Clock,
	pollInterval time.Duration,
	l log.Logger,
) *Machine {
	return &Machine{
		chainID: chainID, ident: ident, scheme: scheme, self: self,
		controller: ctrl, groups: groups,
		clock: clock, pollInterval: pollInterval,
		log: l.Named("dkgphase"),
	}
}

// Run drives the whole protocol to completion or cancellation. It is
// safe to spawn as a scheduler.DynamicScheduler task: it observes ctx at
// every suspension point (waitForPhase, ctx-bound publish calls) and returns
// promptly on cancellation.
func (m *Machine) Run(ctx context.Context) {
	state := m.groups.Get()
	if state.Empty() || state.DKGStatus != key.DKGStatusInPhase {
		m.log.Debugw("dkgphase: nothing to do, no in-flight assignment")
		return
	}
	if err := m.run(ctx, state); err != nil {
		m.log.Errorw("dkgphase failed", "error", err, "group_index", state.Group.Index, "epoch", state.Group.Epoch)
	}
}

func (m *Machine) run(ctx context.Context, state *key.LocalGroupState) error {
	g := state.Group
	coord, err := coordinator.New(g.CoordinatorAddress, m.ident.Client())
	if err != nil {
		return fmt.Errorf("bind coordinator: %w", err)
	}
	opts := m.ident.CallOpts(ctx)
	startBlock, err := coord.StartBlock(opts)
	if err != nil {
		return fmt.Errorf("read start block: %w", err)
	}
	phaseDuration, err := coord.PhaseDuration(opts)
	if err != nil {
		return fmt.Errorf("read phase duration: %w", err)
	}
	start := startBlock.Uint64()
	duration := phaseDuration.Uint64()

	members := g.SortedMembers()
	pubs := make([]kyber.Point, len(members))
	for i, mi := range members {
		if mi == nil || mi.DKGPublicKey == nil {
			return fmt.Errorf("group %d/%d: missing dkg public key for member index %d", g.Index, g.Epoch, i)
		}
		pubs[i] = mi.DKGPublicKey
	}

	cfg := &dkgpedersen.Config{
		Suite:     m.scheme.KeyGroup.(dkgpedersen.Suite),
		Longterm:  m.self.DKGKeyPair.Key,
		NewNodes:  pubs,
		Threshold: g.Threshold,
	}
	gen, err := dkgpedersen.NewDistKeyHandler(cfg)
	if err != nil {
		return fmt.Errorf("init dkg generator: %w", err)
	}

	myIndex := state.SelfIndex

	// Phase 1: publish this member's encrypted deals, collect the
	// responses produced while processing everyone else's deals.
	if err := m.waitForPhase(ctx, coord, coordinator.PhaseShare, start+duration); err != nil {
		return err
	}
	deals, err := gen.Deals()
	if err != nil {
		return fmt.Errorf("generate deals: %w", err)
	}
	sharePacket, err := encodeShare(m.scheme, m.self.DKGKeyPair.Key, myIndex, deals)
	if err != nil {
		return err
	}
	if err := m.publish(ctx, coord, sharePacket); err != nil {
		return fmt.Errorf("publish deals: %w", err)
	}

	if err := m.waitForPhase(ctx, coord, coordinator.PhaseResponse, start+2*duration); err != nil {
		return err
	}
	shares, err := coord.GetShares(m.ident.CallOpts(ctx))
	if err != nil {
		return fmt.Errorf("read shares: %w", err)
	}
	var responses []*dkgpedersen.Response
	for dealer, raw := range shares {
		if dealer == myIndex || len(raw) == 0 {
			continue
		}
		sp, err := decodeShare(m.scheme, pubs[dealer], raw)
		if err != nil {
			m.log.Warnw("dkgphase: dropping unreadable share packet", "dealer", dealer, "error", err)
			continue
		}
		for _, rd := range sp.Deals {
			if rd.Recipient != myIndex {
				continue
			}
			resp, err := gen.ProcessDeal(&dkgpedersen.Deal{Index: rd.Index, Signature: rd.Signature, Deal: rd.Deal})
			if err != nil {
				m.log.Warnw("dkgphase: rejecting deal", "dealer", dealer, "error", err)
				continue
			}
			responses = append(responses, resp)
		}
	}

	// Phase 2: publish responses, collect any justifications our own
	// deals provoked.
	responsePacket, err := encodeResponses(m.scheme, m.self.DKGKeyPair.Key, myIndex, responses)
	if err != nil {
		return err
	}
	if err := m.publish(ctx, coord, responsePacket); err != nil {
		return fmt.Errorf("publish responses: %w", err)
	}

	if err := m.waitForPhase(ctx, coord, coordinator.PhaseJustification, start+3*duration); err != nil {
		return err
	}
	rawResponses, err := coord.GetResponses(m.ident.CallOpts(ctx))
	if err != nil {
		return fmt.Errorf("read responses: %w", err)
	}
	var justifications []*dkgpedersen.Justification
	for sender, raw := range rawResponses {
		if sender == myIndex || len(raw) == 0 {
			continue
		}
		rp, err := decodeResponses(m.scheme, pubs[sender], raw)
		if err != nil {
			m.log.Warnw("dkgphase: dropping unreadable response packet", "sender", sender, "error", err)
			continue
		}
		for _, resp := range rp.Responses {
			j, err := gen.ProcessResponse(resp)
			if err != nil {
				m.log.Warnw("dkgphase: rejecting response", "sender", sender, "error", err)
				continue
			}
			if j != nil {
				justifications = append(justifications, j)
			}
		}
	}

	// Phase 3: publish justifications, if any of our deals were disputed.
	if len(justifications) > 0 {
		justPacket, err := encodeJustifications(m.scheme, m.self.DKGKeyPair.Key, myIndex, justifications)
		if err != nil {
			return err
		}
		if err := m.publish(ctx, coord, justPacket); err != nil {
			return fmt.Errorf("publish justifications: %w", err)
		}
	}

	if err := m.waitForPhase(ctx, coord, coordinator.PhaseOutput, start+4*duration); err != nil {
		return err
	}
	rawJusts, err := coord.GetJustifications(m.ident.CallOpts(ctx))
	if err != nil {
		return fmt.Errorf("read justifications: %w", err)
	}
	for dealer, raw := range rawJusts {
		if dealer == myIndex || len(raw) == 0 {
			continue
		}
		jp, err := decodeJustifications(m.scheme, pubs[dealer], raw)
		if err != nil {
			m.log.Warnw("dkgphase: dropping unreadable justification packet", "dealer", dealer, "error", err)
			continue
		}
		for _, j := range jp.Justifications {
			if err := gen.ProcessJustification(j); err != nil {
				m.log.Warnw("dkgphase: rejecting justification", "dealer", dealer, "error", err)
			}
		}
	}

	// Phase 4: settle on whatever qualification level the round reached
	// and, if usable, submit this member's output to the Controller.
	if !gen.Certified() {
		gen.SetTimeout()
		if !gen.ThresholdCertified() {
			return fmt.Errorf("group %d/%d: dkg round did not reach threshold certification", g.Index, g.Epoch)
		}
	}
	dks, err := gen.DistKeyShare()
	if err != nil {
		return fmt.Errorf("derive dist key share: %w", err)
	}
	qualified := make(map[int]bool, len(dks.Commits))
	for _, idx := range gen.QualifiedShares() {
		qualified[idx] = true
	}

	newGroup := &key.Group{
		Index:              g.Index,
		Epoch:              g.Epoch,
		Size:               g.Size,
		Threshold:          g.Threshold,
		State:              key.GroupReady,
		Commits:            dks.Commits,
		Members:            g.Members,
		Committers:         make(map[ethcommon.Address]struct{}, len(qualified)),
		CoordinatorAddress: g.CoordinatorAddress,
	}
	pubPoly := newGroup.PubPoly(m.scheme)
	var disqualified []ethcommon.Address
	for _, mi := range members {
		if qualified[mi.Index] {
			mi.PartialPublicKey = pubPoly.Eval(mi.Index).V
			newGroup.Committers[mi.IDAddress] = struct{}{}
		} else {
			disqualified = append(disqualified, mi.IDAddress)
		}
	}
	if err := newGroup.Validate(); err != nil {
		return fmt.Errorf("computed group invalid: %w", err)
	}

	m.groups.Update(func(*key.LocalGroupState) *key.LocalGroupState {
		return &key.LocalGroupState{
			Group:      newGroup,
			SelfIndex:  myIndex,
			Share:      dks.Share,
			DKGStatus:  key.DKGStatusCommitSuccess,
			DKGStartBlockHeight: state.DKGStartBlockHeight,
		}
	})

	publicKeyBytes, err := newGroup.PublicKey().MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal group public key: %w", err)
	}
	myPartial, err := pubPoly.Eval(myIndex).V.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal partial public key: %w", err)
	}
	txOpts, err := m.ident.TransactOpts(ctx)
	if err != nil {
		return fmt.Errorf("build commit transactor: %w", err)
	}
	if _, err := m.controller.CommitDkg(txOpts, g.Index, g.Epoch, publicKeyBytes, myPartial, disqualified); err != nil {
		return fmt.Errorf("commit dkg: %w", err)
	}
	m.log.Infow("dkg committed", "group_index", g.Index, "epoch", g.Epoch, "qualified", len(qualified), "disqualified", len(disqualified))
	return nil
}

// waitForPhase blocks until the Coordinator reports phase target (or a
// later phase — rounds are monotonic) or deadline block height passes,
// whichever comes first; it never blocks past ctx cancellation.
func (m *Machine) waitForPhase(ctx context.Context, coord *coordinator.Coordinator, target coordinator.Phase, deadline uint64) error {
	for {
		phase, err := coord.InPhase(m.ident.CallOpts(ctx))
		if err == nil && (phase >= target || phase == coordinator.PhaseEnded) {
			return nil
		}
		height, err := m.ident.BlockNumber(ctx)
		if err == nil && height >= deadline {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.pollInterval):
		}
	}
}

func (m *Machine) publish(ctx context.Context, coord *coordinator.Coordinator, value []byte) error {
	opts, err := m.ident.TransactOpts(ctx)
	if err != nil {
		return err
	}
	return coord.Publish(opts, value)
}
