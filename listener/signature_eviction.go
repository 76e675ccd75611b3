package listener

import (
	"context"

	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/adapter"
	"github.com/arpa-network/randcast-node/log"
)

// SignatureResultEvictionListener sweeps the signature result cache for
// entries that have already been committed locally and are no longer
// pending on the Adapter, or whose group has since re-grouped out from
// under them, and evicts them (spec.md §4.6 eviction rule).
//
// The cache keys entries only by (chain, request_id, group_index), with
// no epoch field to compare directly; a group's Index leaving the node's
// current LocalGroupState.Group.Index is used as the epoch-advanced
// proxy instead.
type SignatureResultEvictionListener struct {
	chainID uint64
	sigs    cache.SignatureResultCacheHandler
	groups  cache.GroupInfoReader
	adapter *adapter.Adapter
	ident   *chain.Identity
	log     log.Logger
}

func NewSignatureResultEvictionListener(
	chainID uint64,
	sigs cache.SignatureResultCacheHandler,
	groups cache.GroupInfoReader,
	a *adapter.Adapter,
	ident *chain.Identity,
	l log.Logger,
) *SignatureResultEvictionListener {
	return &SignatureResultEvictionListener{
		chainID: chainID, sigs: sigs, groups: groups, adapter: a, ident: ident,
		log: l.Named("SignatureResultEvictionListener"),
	}
}

func (el *SignatureResultEvictionListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, el.log, nil, el.tick)
}

func (el *SignatureResultEvictionListener) tick(ctx context.Context) error {
	state := el.groups.Get()
	for _, e := range el.sigs.Committed(el.chainID) {
		if !state.Empty() && state.Group.Index != e.GroupIndex {
			el.sigs.Evict(el.chainID, e.RequestID)
			continue
		}
		commitment, err := el.adapter.GetPendingRequestCommitment(el.ident.CallOpts(ctx), e.RequestID)
		if err != nil {
			el.log.Warnw("get_pending_request_commitment failed", "error", err)
			continue
		}
		if commitment == ([32]byte{}) {
			el.sigs.Evict(el.chainID, e.RequestID)
		}
	}
	return nil
}
