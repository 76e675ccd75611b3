package subscriber

import (
	"context"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/rpc/committer"
	"github.com/arpa-network/randcast-node/scheduler"
)

// PostSuccessGroupingSubscriber reacts to DkgSuccess (spec.md §4.4): local
// group state is already CommitSuccess by the time this fires (the
// listener that publishes DkgSuccess performs that transition itself),
// so this subscriber's job is solely to start accepting committer RPCs
// if this node ended up in the group's committer set.
type PostSuccessGroupingSubscriber struct {
	chainID     uint64
	self        ethAddressFunc
	bindAddr    string
	scheme      *crypto.Scheme
	groups      cache.GroupInfoHandler
	sigs        cache.SignatureResultCacheHandler
	fixed       *scheduler.FixedScheduler
	log         log.Logger
}

// ethAddressFunc resolves this node's own id_address lazily, the same
// pattern PreGroupingListener uses for its `self` accessor.
type ethAddressFunc func() *key.Identity

func NewPostSuccessGroupingSubscriber(
	chainID uint64,
	self ethAddressFunc,
	bindAddr string,
	scheme *crypto.Scheme,
	groups cache.GroupInfoHandler,
	sigs cache.SignatureResultCacheHandler,
	fixed *scheduler.FixedScheduler,
	l log.Logger,
) *PostSuccessGroupingSubscriber {
	return &PostSuccessGroupingSubscriber{
		chainID: chainID, self: self, bindAddr: bindAddr, scheme: scheme,
		groups: groups, sigs: sigs, fixed: fixed, log: l.Named("PostSuccessGroupingSubscriber"),
	}
}

func (s *PostSuccessGroupingSubscriber) Register(q *eventqueue.Queue) {
	q.Subscribe(eventqueue.TopicDkgSuccess(), "PostSuccessGroupingSubscriber", func(payload interface{}) {
		state, ok := payload.(*key.LocalGroupState)
		if !ok || state.Empty() {
			return
		}
		self := s.self()
		if self == nil || !state.Group.IsCommitter(self.IDAddress) {
			return
		}
		fixedKey := scheduler.FixedKey{ChainID: s.chainID, Kind: scheduler.TaskRPCServer, Name: "committer"}
		srv := committer.NewServer(s.scheme, s.groups, s.sigs, s.log)
		err := s.fixed.Start(context.Background(), fixedKey, func(ctx context.Context) {
			ln, err := committer.Listen(s.bindAddr, srv)
			if err != nil {
				s.log.Errorw("committer listener failed to bind", "addr", s.bindAddr, "error", err)
				return
			}
			go func() {
				<-ctx.Done()
				ln.Stop()
			}()
			if err := ln.Serve(); err != nil {
				s.log.Warnw("committer server stopped", "error", err)
			}
		})
		if err != nil {
			if _, already := err.(*scheduler.AlreadyExistsError); !already {
				s.log.Errorw("failed to start committer server", "error", err)
			}
			return
		}
		s.log.Infow("serving committer rpc", "addr", s.bindAddr, "group_index", state.Group.Index, "epoch", state.Group.Epoch)
	})
}
