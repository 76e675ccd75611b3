package listener

import (
	"context"
	"encoding/hex"

	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/log"
)

// RandomnessSignatureAggregationListener scans the signature result cache
// for entries that have reached threshold and are not yet committed, and
// emits ReadyToAggregate for each (spec.md §4.3/§4.6).
type RandomnessSignatureAggregationListener struct {
	chainID uint64
	sigs    cache.SignatureResultCacheHandler
	queue   *eventqueue.Queue
	log     log.Logger
}

func NewRandomnessSignatureAggregationListener(chainID uint64, sigs cache.SignatureResultCacheHandler, queue *eventqueue.Queue, l log.Logger) *RandomnessSignatureAggregationListener {
	return &RandomnessSignatureAggregationListener{chainID: chainID, sigs: sigs, queue: queue, log: l.Named("RandomnessSignatureAggregationListener")}
}

func (al *RandomnessSignatureAggregationListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, al.log, nil, func(ctx context.Context) error { return al.tick() })
}

func (al *RandomnessSignatureAggregationListener) tick() error {
	for _, e := range al.sigs.Ready(al.chainID) {
		al.queue.Publish(eventqueue.TopicReadyToAggregate(al.chainID, hex.EncodeToString(e.RequestID[:])), e)
	}
	return nil
}
