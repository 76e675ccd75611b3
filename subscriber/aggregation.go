package subscriber

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/contracts/adapter"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/scheduler"
)

// RandomnessSignatureAggregationSubscriber runs only on committers
// (spec.md §4.4/§4.6): on ReadyToAggregate it recovers a full threshold
// signature from any t valid partials and submits fulfill_randomness.
type RandomnessSignatureAggregationSubscriber struct {
	chainID uint64
	self    func() *key.Identity
	scheme  *crypto.Scheme
	groups  cache.GroupInfoReader
	sigs    cache.SignatureResultCacheHandler
	adapter *adapter.Adapter
	ident   *chain.Identity
	dynamic *scheduler.DynamicScheduler
	log     log.Logger
}

func NewRandomnessSignatureAggregationSubscriber(
	chainID uint64,
	self func() *key.Identity,
	scheme *crypto.Scheme,
	groups cache.GroupInfoReader,
	sigs cache.SignatureResultCacheHandler,
	a *adapter.Adapter,
	ident *chain.Identity,
	dynamic *scheduler.DynamicScheduler,
	l log.Logger,
) *RandomnessSignatureAggregationSubscriber {
	return &RandomnessSignatureAggregationSubscriber{
		chainID: chainID, self: self, scheme: scheme, groups: groups, sigs: sigs,
		adapter: a, ident: ident, dynamic: dynamic, log: l.Named("RandomnessSignatureAggregationSubscriber"),
	}
}

func (s *RandomnessSignatureAggregationSubscriber) Register(q *eventqueue.Queue) {
	subscriberID := fmt.Sprintf("RandomnessSignatureAggregationSubscriber/%d", s.chainID)
	q.SubscribeByName(eventqueue.NameReadyToAggregate, subscriberID, func(payload interface{}) {
		entry, ok := payload.(*cache.SignatureResult)
		if !ok {
			return
		}
		state := s.groups.Get()
		self := s.self()
		if state.Empty() || self == nil || !state.Group.IsCommitter(self.IDAddress) {
			return
		}
		// byName delivery ignores the per-request key, so a multi-chain
		// process's other chains' ReadyToAggregate events reach here too;
		// the chain mismatch is caught below since entry.RequestID will
		// not exist under this chain's cache bucket.
		if _, ok := s.sigs.Get(s.chainID, entry.RequestID); !ok {
			return
		}
		taskKey := dynamicTaskKey(s.chainID, entry.RequestID)
		s.dynamic.Spawn(context.Background(), taskKey, func(ctx context.Context) {
			s.aggregate(ctx, entry)
		})
	})
}

func (s *RandomnessSignatureAggregationSubscriber) aggregate(ctx context.Context, entry *cache.SignatureResult) {
	current, ok := s.sigs.Get(s.chainID, entry.RequestID)
	if !ok || current.Committed {
		return
	}
	state := s.groups.Get()
	if state.Empty() || state.Group.Index != current.GroupIndex {
		return
	}
	pubPoly := state.Group.PubPoly(s.scheme)
	if pubPoly == nil {
		return
	}

	members := state.Group.SortedMembers()
	type valid struct {
		index int
		sig   []byte
	}
	var partials []valid
	for _, m := range members {
		if m == nil {
			continue
		}
		sig, ok := current.Partials[[20]byte(m.IDAddress)]
		if !ok {
			continue
		}
		if m.PartialPublicKey == nil {
			continue
		}
		if err := s.scheme.VerifyPartial(m.PartialPublicKey, current.Message, sig); err != nil {
			s.log.Warnw("dropping invalid partial at aggregation", "member", m.IDAddress.Hex(), "error", err)
			continue
		}
		partials = append(partials, valid{index: m.Index, sig: sig})
	}
	if len(partials) < current.Threshold {
		return
	}
	sort.Slice(partials, func(i, j int) bool { return partials[i].index < partials[j].index })
	partials = partials[:current.Threshold]

	raw := make([][]byte, len(partials))
	for i, p := range partials {
		raw[i] = p.sig
	}
	recovered, err := s.scheme.RecoverSignature(pubPoly, current.Message, raw, current.Threshold, state.Group.Size)
	if err != nil {
		s.log.Errorw("recover signature failed", "error", err)
		return
	}
	if err := s.scheme.VerifyRecovered(state.Group.PublicKey(), current.Message, recovered); err != nil {
		s.log.Errorw("recovered signature failed verification", "error", err)
		return
	}

	// Commit before submitting: the writer lock's at-most-one-commit
	// transition must happen strictly before the on-chain call is
	// emitted, so a concurrent respawn of this task (or another
	// ReadyToAggregate tick) can never submit the same fulfillment twice
	// (spec.md §4.6/§5). A transient submission failure rolls this back
	// below so a later attempt can still go through.
	if !s.sigs.TryCommit(s.chainID, current.RequestID) {
		return
	}

	opts, err := s.ident.TransactOpts(ctx)
	if err != nil {
		s.log.Errorw("build fulfill_randomness transactor", "error", err)
		s.sigs.Uncommit(s.chainID, current.RequestID)
		return
	}
	partialBigInts := make([]*big.Int, len(raw))
	for i, p := range raw {
		partialBigInts[i] = new(big.Int).SetBytes(p)
	}
	err = s.adapter.FulfillRandomness(opts, current.GroupIndex, current.RequestID, new(big.Int).SetBytes(recovered), partialBigInts)
	if err != nil {
		if chain.IsAlreadyFulfilled(err) {
			s.log.Infow("randomness already fulfilled by another committer", "request_id", hex.EncodeToString(current.RequestID[:]))
			return
		}
		if chain.IsRetryableTxError(err) {
			s.sigs.Uncommit(s.chainID, current.RequestID)
			s.log.Warnw("fulfill_randomness failed transiently, will retry", "request_id", hex.EncodeToString(current.RequestID[:]), "error", err)
			return
		}
		s.log.Warnw("fulfill_randomness reverted, not retrying", "request_id", hex.EncodeToString(current.RequestID[:]), "error", err)
		return
	}
	s.log.Infow("randomness fulfilled", "request_id", hex.EncodeToString(current.RequestID[:]), "group_index", current.GroupIndex)
}
