package listener

import (
	"context"

	cl "github.com/jonboulle/clockwork"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/log"
)

// BlockListener polls eth_blockNumber, updates BlockInfoCache and emits
// NewBlock on height increase (spec.md §4.3).
type BlockListener struct {
	chainID  uint64
	endpoint string
	ident    *chain.Identity
	blocks   cache.BlockInfoHandler
	queue    *eventqueue.Queue
	log      log.Logger
}

func NewBlockListener(chainID uint64, endpoint string, ident *chain.Identity, blocks cache.BlockInfoHandler, queue *eventqueue.Queue, l log.Logger) *BlockListener {
	return &BlockListener{chainID: chainID, endpoint: endpoint, ident: ident, blocks: blocks, queue: queue, log: l.Named("BlockListener")}
}

func (bl *BlockListener) Run(ctx context.Context, clock cl.Clock, cfg Config) {
	Loop(ctx, clock, cfg, bl.log,
		func(ctx context.Context) error { return bl.ident.Reconnect(ctx, bl.endpoint) },
		func(ctx context.Context) error { return bl.tick(ctx, clock) },
	)
}

func (bl *BlockListener) tick(ctx context.Context, clock cl.Clock) error {
	height, err := bl.ident.BlockNumber(ctx)
	if err != nil {
		return err
	}
	prev, ok := bl.blocks.Height(bl.chainID)
	bl.blocks.SetHeight(bl.chainID, height, clock.Now())
	if !ok || height > prev.Height {
		bl.queue.Publish(eventqueue.TopicNewBlock(bl.chainID), height)
	}
	return nil
}
