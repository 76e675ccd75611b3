// Command node is the randcast node daemon: it wires together the chain
// identities, caches, event queue, schedulers, listeners, subscribers,
// and RPC surfaces described across spec.md into one running process.
//
// Grounded on drand's cmd/drand CLI shape (urfave/cli/v2 app, a `start`
// command building a core.Config-equivalent and blocking until signaled)
// with drand's TOML/file-store bootstrap replaced by this node's YAML
// config.Config and bbolt store.Store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cl "github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"

	"github.com/arpa-network/randcast-node/cache"
	"github.com/arpa-network/randcast-node/chain"
	"github.com/arpa-network/randcast-node/config"
	"github.com/arpa-network/randcast-node/contracts/adapter"
	"github.com/arpa-network/randcast-node/contracts/controller"
	"github.com/arpa-network/randcast-node/contracts/erc20"
	"github.com/arpa-network/randcast-node/contracts/relayer"
	"github.com/arpa-network/randcast-node/crypto"
	"github.com/arpa-network/randcast-node/dkgphase"
	"github.com/arpa-network/randcast-node/eventqueue"
	"github.com/arpa-network/randcast-node/key"
	"github.com/arpa-network/randcast-node/listener"
	"github.com/arpa-network/randcast-node/log"
	"github.com/arpa-network/randcast-node/rpc/management"
	"github.com/arpa-network/randcast-node/scheduler"
	"github.com/arpa-network/randcast-node/store"
	"github.com/arpa-network/randcast-node/subscriber"
)

var (
	version   = "dev"
	gitCommit = "none"
	buildDate = "unknown"
)

var configFlag = &cli.StringFlag{
	Name:     "config",
	Aliases:  []string{"c"},
	Usage:    "path to the node's YAML config file",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:    "randcast-node",
		Usage:   "off-chain randomness-committee node",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start the node daemon",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					return startCmd(c.String(configFlag.Name))
				},
			},
		},
	}
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("randcast-node %s (date %s, commit %s)\n", version, buildDate, gitCommit)
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "randcast-node:", err)
		os.Exit(1)
	}
}

func startCmd(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	l := cfg.Logger.Build(log.InfoLevel)
	l.Infow("starting randcast-node", "version", version, "data_path", cfg.DataPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := buildNode(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}
	defer n.close()

	n.run(ctx)

	l.Infow("shutdown signal received, stopping")
	n.dynamic.StopAll()
	n.fixed.StopAll()
	return nil
}

// node bundles every component started by buildNode, so startCmd can
// drive its lifecycle without threading a dozen locals through main.
type node struct {
	cfg *config.Config
	log log.Logger

	db *store.Store

	scheme *crypto.Scheme

	self   *store.DurableNodeInfo
	groups *store.DurableGroupInfo

	queue   *eventqueue.Queue
	fixed   *scheduler.FixedScheduler
	dynamic *scheduler.DynamicScheduler

	mainIdent *chain.Identity
	chains    map[uint64]management.RelayedChain

	mgmtServer *management.ListeningServer
}

func (n *node) close() {
	if n.mgmtServer != nil {
		n.mgmtServer.Stop()
	}
	if err := n.db.Close(); err != nil {
		n.log.Errorw("close store", "error", err)
	}
}

func (n *node) run(ctx context.Context) {
	<-ctx.Done()
}

// defaultThreshold picks a BFT-style majority threshold for a freshly
// detected grouping attempt of the given size (spec.md §3 only requires
// threshold ≤ size; the exact policy is the Controller's to enforce
// on-chain, this is only the local estimate PreGroupingListener records
// before the group reaches state=ready).
func defaultThreshold(size int) int {
	t := size*2/3 + 1
	if t > size {
		t = size
	}
	return t
}

func buildNode(ctx context.Context, cfg *config.Config, l log.Logger) (*node, error) {
	scheme := crypto.New()

	db, err := store.Open(cfg.DataPath, l)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	signingKey, err := cfg.Account.LoadSigningKey()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load account: %w", err)
	}
	signer := chain.NewSigner(signingKey)

	mainIdent, err := chain.NewIdentity(ctx, chain.Main, cfg.ProviderEndpoint, cfg.ChainID, cfg.Addresses(),
		signer, cfg.TimeLimits.ContractViewRetry(), cfg.TimeLimits.ContractTransactionRetry(), l)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("dial main chain: %w", err)
	}

	ctrl, err := controller.New(cfg.Addresses().Controller, mainIdent.Client())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bind controller: %w", err)
	}
	mainAdapter, err := adapter.New(cfg.Addresses().Adapter, mainIdent.Client())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bind main adapter: %w", err)
	}
	arpaToken, err := erc20.New(cfg.Addresses().ARPAToken, mainIdent.Client())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bind arpa token: %w", err)
	}

	groupsMem := cache.NewInMemoryGroupInfo()
	groups, err := store.NewDurableGroupInfo(groupsMem, db, scheme, l)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load group state: %w", err)
	}

	selfMem := cache.NewInMemoryNodeInfo()
	self, existed, err := store.NewDurableNodeInfo(selfMem, db, scheme, l)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if !existed {
		pair := key.NewPair(scheme)
		id := &key.Identity{
			IDAddress:       signer.Address(),
			NodeRPCEndpoint: cfg.NodeAdvertisedCommitterRPCEndpoint,
			DKGKeyPair:      pair,
		}
		self.SetIdentity(id)
		l.Infow("generated fresh dkg keypair for new identity", "id_address", id.IDAddress.Hex())
	}

	blocks := cache.NewInMemoryBlockInfo()

	chainIDs := []uint64{cfg.ChainID}
	for _, rc := range cfg.RelayedChains {
		chainIDs = append(chainIDs, rc.ChainID)
	}
	tasksMem := cache.NewInMemoryBLSTasks()
	tasks, err := store.NewDurableBLSTasks(tasksMem, db, chainIDs, l)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	sigsByChain := make(map[uint64]cache.SignatureResultCacheHandler, len(chainIDs))
	for _, id := range chainIDs {
		sigsByChain[id] = store.NewDurableSignatureResultCache(cache.NewInMemorySignatureResultCache(), db, l)
	}

	queue := eventqueue.New(l)
	fixed := scheduler.NewFixedScheduler(l)
	clock := cl.NewRealClock()
	dynamic := scheduler.NewDynamicScheduler(cfg.TimeLimits.DkgTimeoutDuration(), clock, l)
	go dynamic.Janitor(ctx, cfg.TimeLimits.ListenerInterval())

	selfIdentity := func() *key.Identity { return self.Identity() }

	relayTargets := make([]subscriber.RelayTarget, 0, len(cfg.RelayedChains))
	relayedChains := make(map[uint64]management.RelayedChain, len(cfg.RelayedChains)+1)
	relayedChains[cfg.ChainID] = management.RelayedChain{Adapter: mainAdapter, Ident: mainIdent}

	for _, rc := range cfg.RelayedChains {
		rcIdent, err := chain.NewIdentity(ctx, chain.Relayed, rc.ProviderEndpoint, rc.ChainID, rc.Addresses(),
			signer, rc.TimeLimits.ContractViewRetry(), rc.TimeLimits.ContractTransactionRetry(), l)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("dial relayed chain %d: %w", rc.ChainID, err)
		}
		rcRelayer, err := relayer.New(rc.Addresses().ControllerRelayer, rcIdent.Client())
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bind relayer on chain %d: %w", rc.ChainID, err)
		}
		rcAdapter, err := adapter.New(rc.Addresses().Adapter, rcIdent.Client())
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bind adapter on chain %d: %w", rc.ChainID, err)
		}
		relayTargets = append(relayTargets, subscriber.RelayTarget{ChainID: rc.ChainID, Ident: rcIdent, Relayer: rcRelayer})
		relayedChains[rc.ChainID] = management.RelayedChain{Adapter: rcAdapter, Ident: rcIdent}

		startChainListeners(ctx, chainListenerDeps{
			chainID: rc.ChainID, providerEndpoint: rc.ProviderEndpoint, ident: rcIdent, tl: rc.TimeLimits, l: l,
			fixed: fixed, queue: queue, blocks: blocks, groups: groups, tasks: tasks,
			sigs: sigsByChain[rc.ChainID], adapter: rcAdapter, relayer: rcRelayer, scheme: scheme,
		})
		startChainSubscribers(chainSubscriberDeps{
			chainID: rc.ChainID, self: selfIdentity, scheme: scheme, groups: groups,
			sigs: sigsByChain[rc.ChainID], fixed: fixed, dynamic: dynamic, l: l,
			adapter: rcAdapter, ident: rcIdent,
			bindAddr:    cfg.NodeCommitterRPCEndpoint,
			commitRetry: cfg.TimeLimits.CommitPartialSignatureRetry(),
			queue:       queue,
		})
	}

	startChainListeners(ctx, chainListenerDeps{
		chainID: cfg.ChainID, providerEndpoint: cfg.ProviderEndpoint, ident: mainIdent, tl: cfg.TimeLimits, l: l,
		fixed: fixed, queue: queue, blocks: blocks, groups: groups, tasks: tasks,
		sigs: sigsByChain[cfg.ChainID], adapter: mainAdapter, scheme: scheme,
		mainChain: true, self: selfIdentity, controller: ctrl,
	})
	startChainSubscribers(chainSubscriberDeps{
		chainID: cfg.ChainID, self: selfIdentity, scheme: scheme, groups: groups,
		sigs: sigsByChain[cfg.ChainID], fixed: fixed, dynamic: dynamic, l: l,
		adapter: mainAdapter, ident: mainIdent,
		bindAddr:    cfg.NodeCommitterRPCEndpoint,
		commitRetry: cfg.TimeLimits.CommitPartialSignatureRetry(),
		queue:       queue,
		mainChain:   true, controller: ctrl, relayTargets: relayTargets,
		dkgWaitInterval: cfg.TimeLimits.DkgWaitForPhaseInterval(),
	})

	subscriber.NewPreGroupingSubscriber(groups, l).Register(queue)

	mgmtHandler := management.NewHandler(selfIdentity, scheme, groups, sigsByChain, fixed, dynamic,
		mainIdent, ctrl, arpaToken, relayedChains, cfg.TimeLimits.CommitPartialSignatureRetry(), db.Close, l)

	var mgmtServer *management.ListeningServer
	if cfg.NodeManagementRPCEndpoint != "" {
		mgmtServer, err = management.Listen(cfg.NodeManagementRPCEndpoint, mgmtHandler, cfg.NodeManagementRPCToken.String())
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("start management rpc: %w", err)
		}
		go func() {
			if err := mgmtServer.Serve(); err != nil {
				l.Warnw("management rpc server stopped", "error", err)
			}
		}()
		l.Infow("serving management rpc", "addr", cfg.NodeManagementRPCEndpoint)
	}

	return &node{
		cfg: cfg, log: l, db: db, scheme: scheme,
		self: self, groups: groups, queue: queue, fixed: fixed, dynamic: dynamic,
		mainIdent: mainIdent, chains: relayedChains, mgmtServer: mgmtServer,
	}, nil
}

type chainListenerDeps struct {
	chainID          uint64
	providerEndpoint string
	ident            *chain.Identity
	tl         config.TimeLimitsConfig
	l          log.Logger
	fixed      *scheduler.FixedScheduler
	queue      *eventqueue.Queue
	blocks     cache.BlockInfoHandler
	groups     cache.GroupInfoHandler
	tasks      cache.BLSTasksHandler
	sigs       cache.SignatureResultCacheHandler
	adapter    *adapter.Adapter
	relayer    *relayer.Relayer
	scheme     *crypto.Scheme
	mainChain  bool
	self       func() *key.Identity
	controller *controller.Controller
}

// startChainListeners registers every periodic listener relevant to one
// chain as a fixed task (spec.md §4.3): block tracking and randomness
// task discovery/readiness run everywhere; the main-chain-only DKG
// lifecycle listeners and the relayed-chain-only group relay
// confirmation listener are gated on mainChain/relayer presence.
func startChainListeners(ctx context.Context, d chainListenerDeps) {
	lcfg := listener.Config{
		Interval:              d.tl.ListenerInterval(),
		UseJitter:             true,
		ProviderResetAttempts: d.tl.ProviderReset().MaxAttempts,
		ProviderResetInterval: d.tl.ProviderReset().InitialInterval,
	}

	startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "block", d.l, func(ctx context.Context, clock cl.Clock) {
		listener.NewBlockListener(d.chainID, d.providerEndpoint, d.ident, d.blocks, d.queue, d.l).Run(ctx, clock, lcfg)
	})
	startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "randomness_task", d.l, func(ctx context.Context, clock cl.Clock) {
		listener.NewNewRandomnessTaskListener(d.chainID, d.adapter, d.ident, d.tasks, d.groups, d.queue, d.l).Run(ctx, clock, lcfg)
	})
	startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "ready_to_handle", d.l, func(ctx context.Context, clock cl.Clock) {
		exclusiveWindow := d.tl.RandomnessTaskExclusiveWindow()
		listener.NewReadyToHandleRandomnessTaskListener(d.chainID, uint64(exclusiveWindow/d.tl.BlockTime()), d.blocks, d.tasks, d.groups, d.queue, d.l).Run(ctx, clock, lcfg)
	})
	startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "aggregation", d.l, func(ctx context.Context, clock cl.Clock) {
		listener.NewRandomnessSignatureAggregationListener(d.chainID, d.sigs, d.queue, d.l).Run(ctx, clock, lcfg)
	})
	startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "signature_eviction", d.l, func(ctx context.Context, clock cl.Clock) {
		listener.NewSignatureResultEvictionListener(d.chainID, d.sigs, d.groups, d.adapter, d.ident, d.l).Run(ctx, clock, lcfg)
	})

	if d.mainChain {
		startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "pregrouping", d.l, func(ctx context.Context, clock cl.Clock) {
			listener.NewPreGroupingListener(d.chainID, d.self, d.controller, d.ident, d.scheme, d.groups, d.blocks, d.queue, defaultThreshold, d.l).Run(ctx, clock, lcfg)
		})
		startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "postcommit", d.l, func(ctx context.Context, clock cl.Clock) {
			listener.NewPostCommitGroupingListener(d.chainID, d.controller, d.ident, d.scheme, d.groups, d.queue, d.l).Run(ctx, clock, lcfg)
		})
		startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "postgrouping", d.l, func(ctx context.Context, clock cl.Clock) {
			timeoutBlocks := uint64(d.tl.DkgTimeoutDuration() / d.tl.BlockTime())
			listener.NewPostGroupingListener(d.chainID, timeoutBlocks, d.blocks, d.groups, d.queue, d.l).Run(ctx, clock, lcfg)
		})
	}
	if d.relayer != nil {
		startFixed(ctx, d.fixed, d.chainID, scheduler.TaskListener, "group_relay", d.l, func(ctx context.Context, clock cl.Clock) {
			listener.NewGroupRelayConfirmationListener(d.chainID, d.relayer, d.groups, d.queue, d.l).Run(ctx, clock, lcfg)
		})
	}
}

type chainSubscriberDeps struct {
	chainID         uint64
	self            func() *key.Identity
	scheme          *crypto.Scheme
	groups          cache.GroupInfoHandler
	sigs            cache.SignatureResultCacheHandler
	fixed           *scheduler.FixedScheduler
	dynamic         *scheduler.DynamicScheduler
	l               log.Logger
	adapter         *adapter.Adapter
	ident           *chain.Identity
	bindAddr        string
	commitRetry     chain.RetryDescriptor
	queue           *eventqueue.Queue
	mainChain       bool
	controller      *controller.Controller
	relayTargets    []subscriber.RelayTarget
	dkgWaitInterval time.Duration
}

// startChainSubscribers registers every event subscriber relevant to one
// chain (spec.md §4.4): the randomness solicitation/aggregation pipeline
// runs everywhere; the main-chain-only DKG grouping subscribers and
// relay-push subscriber are gated on mainChain.
func startChainSubscribers(d chainSubscriberDeps) {
	subscriber.NewBlockSubscriber(d.chainID, d.l).Register(d.queue)
	subscriber.NewReadyToHandleRandomnessTaskSubscriber(d.chainID, d.self, d.scheme, d.groups, d.sigs, d.commitRetry, d.dynamic, d.l).Register(d.queue)
	subscriber.NewRandomnessSignatureAggregationSubscriber(d.chainID, d.self, d.scheme, d.groups, d.sigs, d.adapter, d.ident, d.dynamic, d.l).Register(d.queue)
	subscriber.NewPostSuccessGroupingSubscriber(d.chainID, d.self, d.bindAddr, d.scheme, d.groups, d.sigs, d.fixed, d.l).Register(d.queue)

	if d.mainChain {
		subscriber.NewInGroupingSubscriber(d.chainID, func() *dkgphase.Machine {
			return dkgphase.New(d.chainID, d.ident, d.scheme, d.self(), d.controller, d.groups, cl.NewRealClock(), d.dkgWaitInterval, d.l)
		}, d.dynamic, d.groups, d.l).Register(d.queue)
		subscriber.NewPostGroupingSubscriber(d.controller, d.ident, d.groups, d.relayTargets, d.dynamic, d.l).Register(d.queue)
	}
}

// startFixed registers fn as a long-lived fixed task, logging (not
// failing startup on) an AlreadyExistsError collision.
func startFixed(ctx context.Context, fixed *scheduler.FixedScheduler, chainID uint64, kind scheduler.TaskKind, name string, l log.Logger, fn func(ctx context.Context, clock cl.Clock)) {
	fkey := scheduler.FixedKey{ChainID: chainID, Kind: kind, Name: name}
	err := fixed.Start(ctx, fkey, func(ctx context.Context) { fn(ctx, cl.NewRealClock()) })
	if err != nil {
		if _, already := err.(*scheduler.AlreadyExistsError); !already {
			l.Errorw("failed to start fixed task", "key", fkey.String(), "error", err)
		}
	}
}
