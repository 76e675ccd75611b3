package subscriber

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/rpc/committer"
	"github.com/arpa-network/randcast-node/scheduler"
)

// ReadyToHandleRandomnessTaskSubscriber implements spec.md §4.4's
// four-step partial-signature solicitation: compute this node's partial
// over the task message, deposit it locally, then push it to every
// committer of the group (skipping self if self is a committer, since
// the deposit already covers that case).
type ReadyToHandleRandomnessTaskSubscriber struct {
	chainID     uint64
	self        func() *key.Identity
	scheme      *crypto.Scheme
	groups      cache.GroupInfoReader
	sigs        cache.SignatureResultCacheHandler
	commitRetry chain.RetryDescriptor
	dynamic     *scheduler.DynamicScheduler
	log         log.Logger
}

func NewReadyToHandleRandomnessTaskSubscriber(
	chainID uint64,
	self func() *key.Identity,
	scheme *crypto.Scheme,
	groups cache.GroupInfoReader,
	sigs cache.SignatureResultCacheHandler,
	commitRetry chain.RetryDescriptor,
	dynamic *scheduler.DynamicScheduler,
	l log.Logger,
) *ReadyToHandleRandomnessTaskSubscriber {
	return &ReadyToHandleRandomnessTaskSubscriber{
		chainID: chainID, self: self, scheme: scheme, groups: groups, sigs: sigs,
		commitRetry: commitRetry, dynamic: dynamic, log: l.Named("ReadyToHandleRandomnessTaskSubscriber"),
	}
}

func (s *ReadyToHandleRandomnessTaskSubscriber) Register(q *eventqueue.Queue) {
	q.Subscribe(eventqueue.TopicReadyToHandleRandomnessTask(s.chainID), "ReadyToHandleRandomnessTaskSubscriber", func(payload interface{}) {
		tasks, ok := payload.([]cache.RandomnessTask)
		if !ok {
			return
		}
		for _, t := range tasks {
			task := t
			taskKey := dynamicTaskKey(s.chainID, task.RequestID)
			s.dynamic.Spawn(context.Background(), taskKey, func(ctx context.Context) {
				s.handle(ctx, task)
			})
		}
	})
}

func (s *ReadyToHandleRandomnessTaskSubscriber) handle(ctx context.Context, t cache.RandomnessTask) {
	state := s.groups.Get()
	if state.Empty() || state.Group.Index != t.GroupIndex || state.Share == nil {
		s.log.Warnw("dropping randomness task: no matching ready share", "request_id", fmt.Sprintf("%x", t.RequestID))
		return
	}
	self := s.self()
	if self == nil {
		return
	}

	partial, err := s.scheme.PartialSign(state.Share, t.Message)
	if err != nil {
		s.log.Errorw("partial sign failed", "request_id", fmt.Sprintf("%x", t.RequestID), "error", err)
		return
	}

	grace := state.Group.Size - state.Group.Threshold
	s.sigs.GetOrCreate(s.chainID, t.GroupIndex, t.RequestID, t.Message, state.Group.Threshold, grace)
	s.sigs.AddPartial(s.chainID, t.RequestID, [20]byte(self.IDAddress), partial)

	req := &committer.CommitPartialSignatureRequest{
		ChainID:     s.chainID,
		GroupIndex:  t.GroupIndex,
		Epoch:       state.Group.Epoch,
		RequestID:   t.RequestID,
		Message:     t.Message,
		SenderIndex: state.SelfIndex,
		Signature:   partial,
	}

	for _, m := range state.Group.SortedMembers() {
		if m == nil || m.IDAddress == self.IDAddress || !state.Group.IsCommitter(m.IDAddress) {
			continue
		}
		endpoint := m.RPCEndpoint
		err := chain.WithRetry(ctx, s.commitRetry, func() error {
			return s.send(ctx, endpoint, req)
		})
		if err != nil {
			s.log.Warnw("failed to deliver partial signature to committer", "committer", m.IDAddress.Hex(), "request_id", hex.EncodeToString(t.RequestID[:]), "error", err)
		}
	}
}

func (s *ReadyToHandleRandomnessTaskSubscriber) send(ctx context.Context, endpoint string, req *committer.CommitPartialSignatureRequest) error {
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
