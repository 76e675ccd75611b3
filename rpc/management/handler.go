package management

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/adapter"
	"github.com/arpa-network/randcast-node/contracts/controller"
	"github.com/arpa-network/randcast-node/contracts/erc20"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/rpc/committer"
	"github.com/arpa-network/randcast-node/scheduler"
)

// listenerKey addresses one StartListener/ShutdownListener target.
type listenerKey struct {
	chainID uint64
	name    string
}

// RelayedChain bundles one relayed chain's adapter + signer, used by
// FulfillRandomness's manual trigger path.
type RelayedChain struct {
	Adapter *adapter.Adapter
	Ident   *chain.Identity
}

// Handler implements Server, wired to every component an operator can
// introspect or manually drive (SPEC_FULL §13). One Handler instance
// serves a whole node process, so chain_id is a request parameter for
// the per-chain RPCs rather than a constructor field.
type Handler struct {
	self   func() *key.Identity
	scheme *crypto.Scheme
	groups cache.GroupInfoHandler
	sigs   map[uint64]cache.SignatureResultCacheHandler

	fixed   *scheduler.FixedScheduler
	dynamic *scheduler.DynamicScheduler

	listeners map[listenerKey]func(ctx context.Context)

	mainIdent  *chain.Identity
	controller *controller.Controller
	token      *erc20.ERC20

	chains map[uint64]RelayedChain // by chain_id, main chain included

	commitRetry chain.RetryDescriptor
	closeStore  func() error

	log log.Logger
}

// NewHandler builds the management handler. Listener factories are added
// afterward via RegisterListenerFactory; cmd/node does not call it, so
// StartListener reports an unknown listener type until a factory has been
// registered.
func NewHandler(
	self func() *key.Identity,
	scheme *crypto.Scheme,
	groups cache.GroupInfoHandler,
	sigs map[uint64]cache.SignatureResultCacheHandler,
	fixed *scheduler.FixedScheduler,
	dynamic *scheduler.DynamicScheduler,
	mainIdent *chain.Identity,
	ctrl *controller.Controller,
	arpaToken *erc20.ERC20,
	chains map[uint64]RelayedChain,
	commitRetry chain.RetryDescriptor,
	closeStore func() error,
	l log.Logger,
) *Handler {
	return &Handler{
		self: self, scheme: scheme, groups: groups, sigs: sigs,
		fixed: fixed, dynamic: dynamic,
		listeners:   make(map[listenerKey]func(ctx context.Context)),
		mainIdent:   mainIdent, controller: ctrl, token: arpaToken,
		chains:      chains,
		commitRetry: commitRetry, closeStore: closeStore,
		log: l.Named("management"),
	}
}

// RegisterListenerFactory makes listenerType startable/shutdownable on
// chainID via StartListener/ShutdownListener. Call before Listen serves
// (spec.md §4.2 subscriber-registration-before-listener-start ordering
// applies here too: the registry must be populated before an operator
// can reach it over the wire).
func (h *Handler) RegisterListenerFactory(chainID uint64, listenerType string, fn func(ctx context.Context)) {
	h.listeners[listenerKey{chainID: chainID, name: listenerType}] = fn
}

func (h *Handler) ListFixedTasks(ctx context.Context, req *ListFixedTasksRequest) (*ListFixedTasksResponse, error) {
	list := h.fixed.List()
	tasks := make([]FixedTaskInfo, len(list))
	for i, t := range list {
		tasks[i] = FixedTaskInfo{ChainID: t.ChainID, TaskType: t.TaskType, Name: t.Name, Running: t.Running}
	}
	return &ListFixedTasksResponse{Tasks: tasks}, nil
}

func (h *Handler) StartListener(ctx context.Context, req *StartListenerRequest) (*Empty, error) {
	fn, ok := h.listeners[listenerKey{chainID: req.ChainID, name: req.ListenerType}]
	if !ok {
		return nil, fmt.Errorf("unknown listener type %q for chain %d", req.ListenerType, req.ChainID)
	}
	fkey := scheduler.FixedKey{ChainID: req.ChainID, Kind: scheduler.TaskListener, Name: req.ListenerType}
	if err := h.fixed.Start(context.Background(), fkey, fn); err != nil {
		if _, already := err.(*scheduler.AlreadyExistsError); already {
			return &Empty{}, nil
		}
		return nil, err
	}
	h.log.Infow("listener started via management rpc", "chain_id", req.ChainID, "listener_type", req.ListenerType)
	return &Empty{}, nil
}

func (h *Handler) ShutdownListener(ctx context.Context, req *ShutdownListenerRequest) (*Empty, error) {
	fkey := scheduler.FixedKey{ChainID: req.ChainID, Kind: scheduler.TaskListener, Name: req.ListenerType}
	h.fixed.Stop(fkey)
	h.log.Infow("listener stopped via management rpc", "chain_id", req.ChainID, "listener_type", req.ListenerType)
	return &Empty{}, nil
}

func (h *Handler) GetNodeInfo(ctx context.Context, req *GetNodeInfoRequest) (*NodeInfo, error) {
	self := h.self()
	if self == nil {
		return nil, fmt.Errorf("node identity not yet established")
	}
	pub, err := self.PublicKeyBytes()
	if err != nil {
		return nil, err
	}
	info := &NodeInfo{
		IDAddress:       self.IDAddress.Hex(),
		NodeRPCEndpoint: self.NodeRPCEndpoint,
		DKGPublicKey:    pub,
	}
	if h.token != nil && h.mainIdent != nil {
		staked, err := h.token.BalanceOf(h.mainIdent.CallOpts(ctx), self.IDAddress)
		if err != nil {
			h.log.Warnw("read staked balance failed", "error", err)
			staked = big.NewInt(0)
		}
		// Allowance(self, controller) stands in for "frozen principal": the
		// ARPA the node has approved the Controller to hold against its
		// stake, since the token binding (contracts/erc20) exposes no
		// dedicated staking-contract read.
		frozen, err := h.token.Allowance(h.mainIdent.CallOpts(ctx), self.IDAddress, h.controller.Address())
		if err != nil {
			h.log.Warnw("read frozen principal failed", "error", err)
			frozen = big.NewInt(0)
		}
		info.StakedAmount = staked.String()
		info.FrozenPrincipal = frozen.String()
	}
	return info, nil
}

func (h *Handler) GetGroupInfo(ctx context.Context, req *GetGroupInfoRequest) (*GroupInfo, error) {
	state := h.groups.Get()
	if state.Empty() {
		return &GroupInfo{}, nil
	}
	g := state.Group
	members := make([]MemberView, 0, len(g.Members))
	for _, m := range g.SortedMembers() {
		if m == nil {
			continue
		}
		members = append(members, MemberView{Index: m.Index, IDAddress: m.IDAddress.Hex(), RPCEndpoint: m.RPCEndpoint})
	}
	committers := make([]string, 0, len(g.Committers))
	for addr := range g.Committers {
		committers = append(committers, addr.Hex())
	}
	resp := &GroupInfo{
		Index: g.Index, Epoch: g.Epoch, Size: g.Size, Threshold: g.Threshold,
		State: g.State.String(), Members: members, Committers: committers,
	}
	if pub := g.PublicKey(); pub != nil {
		b, err := pub.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal group public key: %w", err)
		}
		resp.PublicKey = b
	}
	return resp, nil
}

func (h *Handler) NodeRegister(ctx context.Context, req *NodeRegisterRequest) (*Empty, error) {
	self := h.self()
	if self == nil {
		return nil, fmt.Errorf("node identity not yet established")
	}
	opts, err := h.mainIdent.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build node_register transactor: %w", err)
	}
	pub, err := self.PublicKeyBytes()
	if err != nil {
		return nil, err
	}
	if _, err := h.controller.NodeRegister(opts, pub, req.NodeRPCEndpoint); err != nil {
		return nil, fmt.Errorf("node_register: %w", err)
	}
	self.NodeRPCEndpoint = req.NodeRPCEndpoint
	h.log.Infow("node registered", "node_rpc_endpoint", req.NodeRPCEndpoint)
	return &Empty{}, nil
}

func (h *Handler) ShutdownNode(ctx context.Context, req *ShutdownNodeRequest) (*Empty, error) {
	h.log.Warnw("node shutdown requested via management rpc")
	h.dynamic.StopAll()
	h.fixed.StopAll()
	if h.closeStore != nil {
		if err := h.closeStore(); err != nil {
			return nil, fmt.Errorf("close store: %w", err)
		}
	}
	return &Empty{}, nil
}

func (h *Handler) PostProcessDkg(ctx context.Context, req *PostProcessDkgRequest) (*Empty, error) {
	opts, err := h.mainIdent.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build post_process_dkg transactor: %w", err)
	}
	if _, err := h.controller.PostProcessDkg(opts, req.GroupIndex, req.Epoch); err != nil {
		return nil, fmt.Errorf("post_process_dkg: %w", err)
	}
	return &Empty{}, nil
}

func (h *Handler) PartialSign(ctx context.Context, req *PartialSignRequest) (*PartialSignatureResponse, error) {
	state := h.groups.Get()
	if state.Empty() || state.Group.Index != req.GroupIndex || state.Share == nil {
		return nil, fmt.Errorf("no ready share for group %d", req.GroupIndex)
	}
	sig, err := h.scheme.PartialSign(state.Share, req.Message)
	if err != nil {
		return nil, err
	}
	return &PartialSignatureResponse{PartialSigBytes: sig}, nil
}

func (h *Handler) AggregatePartialSigs(ctx context.Context, req *AggregatePartialSigsRequest) (*SignatureResponse, error) {
	state := h.groups.Get()
	if state.Empty() || state.Group.Index != req.GroupIndex {
		return nil, fmt.Errorf("no local state for group %d", req.GroupIndex)
	}
	pubPoly := state.Group.PubPoly(h.scheme)
	if pubPoly == nil {
		return nil, fmt.Errorf("group %d has no public polynomial", req.GroupIndex)
	}
	sig, err := h.scheme.RecoverSignature(pubPoly, req.Message, req.Partials, state.Group.Threshold, state.Group.Size)
	if err != nil {
		return nil, fmt.Errorf("recover signature: %w", err)
	}
	return &SignatureResponse{SignatureBytes: sig}, nil
}

func (h *Handler) VerifySig(ctx context.Context, req *VerifySigRequest) (*VerifySigResponse, error) {
	state := h.groups.Get()
	if state.Empty() || state.Group.Index != req.GroupIndex {
		return nil, fmt.Errorf("no local state for group %d", req.GroupIndex)
	}
	pub := state.Group.PublicKey()
	if pub == nil {
		return nil, fmt.Errorf("group %d has no public key", req.GroupIndex)
	}
	valid := h.scheme.VerifyRecovered(pub, req.Message, req.Signature) == nil
	return &VerifySigResponse{Valid: valid}, nil
}

// VerifyPartialSigs checks each entry of req.Partials against the group
// member at the same Shamir index (SortedMembers order) — the same
// index convention AggregatePartialSigs' input uses, since neither RPC
// carries an explicit sender_index per partial (unlike
// rpc/committer.CommitPartialSignatureRequest, which does).
func (h *Handler) VerifyPartialSigs(ctx context.Context, req *VerifyPartialSigsRequest) (*VerifyPartialSigsResponse, error) {
	state := h.groups.Get()
	if state.Empty() || state.Group.Index != req.GroupIndex {
		return nil, fmt.Errorf("no local state for group %d", req.GroupIndex)
	}
	members := state.Group.SortedMembers()
	invalid := make([]int, 0)
	for i, partial := range req.Partials {
		if i >= len(members) || members[i] == nil || members[i].PartialPublicKey == nil {
			invalid = append(invalid, i)
			continue
		}
		if err := h.scheme.VerifyPartial(members[i].PartialPublicKey, req.Message, partial); err != nil {
			invalid = append(invalid, i)
		}
	}
	return &VerifyPartialSigsResponse{InvalidIndices: invalid}, nil
}

func (h *Handler) SendPartialSig(ctx context.Context, req *SendPartialSigRequest) (*Empty, error) {
	state := h.groups.Get()
	self := h.self()
	if state.Empty() || self == nil {
		return nil, fmt.Errorf("node has no active group")
	}
	commitReq := &committer.CommitPartialSignatureRequest{
		ChainID:     req.ChainID,
		GroupIndex:  state.Group.Index,
		Epoch:       state.Group.Epoch,
		RequestID:   req.RequestID,
		Message:     nil,
		SenderIndex: state.SelfIndex,
		Signature:   req.Partial,
	}
	if sigs, ok := h.sigs[req.ChainID]; ok {
		if entry, ok := sigs.Get(req.ChainID, req.RequestID); ok {
			commitReq.Message = entry.Message
		}
	}
	var lastErr error
	for _, m := range state.Group.SortedMembers() {
		if m == nil || m.IDAddress == self.IDAddress || !state.Group.IsCommitter(m.IDAddress) {
			continue
		}
		err := chain.WithRetry(ctx, h.commitRetry, func() error {
			return h.sendPartial(ctx, m.RPCEndpoint, commitReq)
		})
		if err != nil {
			lastErr = err
			h.log.Warnw("manual partial resend failed", "committer", m.IDAddress.Hex(), "request_id", hex.EncodeToString(req.RequestID[:]), "error", err)
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return &Empty{}, nil
}

func (h *Handler) sendPartial(ctx context.Context, endpoint string, req *committer.CommitPartialSignatureRequest) error {
	client, err := committer.Dial(ctx, endpoint)
	if err != nil {
		return err
	}
	defer client.Close()
	resp, err := client.CommitPartialSignature(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("committer rejected partial signature: %s", resp.Reason)
	}
	return nil
}

func (h *Handler) FulfillRandomness(ctx context.Context, req *FulfillRandomnessRequest) (*Empty, error) {
	state := h.groups.Get()
	self := h.self()
	if state.Empty() || self == nil || !state.Group.IsCommitter(self.IDAddress) {
		return nil, fmt.Errorf("node is not a committer of the active group")
	}
	sigs, ok := h.sigs[req.ChainID]
	if !ok {
		return nil, fmt.Errorf("unknown chain %d", req.ChainID)
	}
	entry, ok := sigs.Get(req.ChainID, req.RequestID)
	if !ok {
		return nil, fmt.Errorf("no signature result cached for request %s", hex.EncodeToString(req.RequestID[:]))
	}
	if entry.Committed {
		return &Empty{}, nil
	}
	pubPoly := state.Group.PubPoly(h.scheme)
	if pubPoly == nil {
		return nil, fmt.Errorf("group %d has no public polynomial", entry.GroupIndex)
	}
	raw := make([][]byte, 0, len(entry.Partials))
	for _, sig := range entry.Partials {
		raw = append(raw, sig)
	}
	if len(raw) < entry.Threshold {
		return nil, fmt.Errorf("only %d/%d partials cached, cannot recover", len(raw), entry.Threshold)
	}
	recovered, err := h.scheme.RecoverSignature(pubPoly, entry.Message, raw, entry.Threshold, state.Group.Size)
	if err != nil {
		return nil, fmt.Errorf("recover signature: %w", err)
	}
	target, ok := h.chains[req.ChainID]
	if !ok {
		return nil, fmt.Errorf("no chain identity wired for chain %d", req.ChainID)
	}
	opts, err := target.Ident.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build fulfill_randomness transactor: %w", err)
	}
	partialBigInts := make([]*big.Int, len(raw))
	for i, p := range raw {
		partialBigInts[i] = new(big.Int).SetBytes(p)
	}
	err = target.Adapter.FulfillRandomness(opts, entry.GroupIndex, entry.RequestID, new(big.Int).SetBytes(recovered), partialBigInts)
	if err != nil {
		if chain.IsAlreadyFulfilled(err) {
			sigs.TryCommit(req.ChainID, req.RequestID)
			return &Empty{}, nil
		}
		return nil, fmt.Errorf("fulfill_randomness: %w", err)
	}
	sigs.TryCommit(req.ChainID, req.RequestID)
	h.log.Infow("randomness fulfilled via management rpc", "chain_id", req.ChainID, "request_id", hex.EncodeToString(req.RequestID[:]))
	return &Empty{}, nil
}
