// Package chain provides the per-chain "Chain Identity" handle of
// spec.md §4.1: a JSON-RPC provider, a nonce-managed signer, contract
// addresses, and retry descriptors for view calls and transactions.
//
// Grounded on github.com/ethereum/go-ethereum's ethclient + accounts/abi/bind
// (the corpus's EVM client repo — the teacher, drand, has no EVM chain of
// its own), following the same dial/sign/call shape as
// ethclient/example_test.go and accounts/abi/bind.TransactOpts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/arpa-network/randcast-node/log"
)

// Kind distinguishes the main chain (where Controller/Coordinator/Staking
// live) from a relayed chain (adapter + ControllerRelayer only). Behavior
// differs only in which listeners/subscribers are activated (see
// SPEC_FULL §9 / spec.md design note "Polymorphism over chains").
type Kind int

const (
	Main Kind = iota
	Relayed
)

func (k Kind) String() string {
	if k == Main {
		return "main"
	}
	return "relayed"
}

// Addresses bundles the on-chain contract addresses configured for one
// chain (spec.md §6 config fields).
type Addresses struct {
	Controller         ethcommon.Address
	ControllerRelayer  ethcommon.Address
	Adapter            ethcommon.Address
	ARPAToken          ethcommon.Address
}

// Identity is a chain's session: provider, signer, addresses and retry
// descriptors. One Identity is constructed per configured chain (main plus
// each relayed chain).
type Identity struct {
	ChainID   uint64
	Kind      Kind
	Addresses Addresses

	client *ethclient.Client
	signer *Signer

	ViewRetry RetryDescriptor
	TxRetry   RetryDescriptor

	log log.Logger
}

// Signer wraps a private key with a local nonce cache so concurrent
// transaction submissions on this chain don't race on PendingNonceAt.
type Signer struct {
	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address ethcommon.Address
	nonce   *uint64 // lazily initialized from chain state
}

// NewSigner wraps a raw private key (loaded from hdwallet/keystore/env per
// spec.md §6 `account`) for use as a chain.Identity's transaction signer.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the signer's Ethereum address — this node's id_address.
func (s *Signer) Address() ethcommon.Address {
	return s.address
}

// nextNonce returns the next nonce to use, seeding from the chain on first
// use and incrementing locally thereafter (reseeded on underpriced/nonce
// conflict errors by the retry loop in transact.go).
func (s *Signer) nextNonce(ctx context.Context, client *ethclient.Client) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nonce == nil {
		n, err := client.PendingNonceAt(ctx, s.address)
		if err != nil {
			return 0, fmt.Errorf("seed nonce: %w", err)
		}
		s.nonce = &n
	}
	n := *s.nonce
	*s.nonce = n + 1
	return n, nil
}

// resetNonce forces the next call to nextNonce to reseed from chain state,
// used after a nonce_conflict or underpriced transaction error.
func (s *Signer) resetNonce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce = nil
}

// NewIdentity dials provider and builds a chain Identity. endpoint may be
// an HTTP or WS URL (spec.md §6 provider_endpoint).
func NewIdentity(
	ctx context.Context,
	kind Kind,
	endpoint string,
	chainID uint64,
	addrs Addresses,
	signer *Signer,
	viewRetry, txRetry RetryDescriptor,
	l log.Logger,
) (*Identity, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial provider %s: %w", endpoint, err)
	}
	return &Identity{
		ChainID:   chainID,
		Kind:      kind,
		Addresses: addrs,
		client:    client,
		signer:    signer,
		ViewRetry: viewRetry,
		TxRetry:   txRetry,
		log:       l.With("chain_id", chainID, "kind", kind.String()),
	}, nil
}

// Client exposes the raw ethclient for listeners that need block
// height / log polling directly (the retry-wrapped BlockNumber view is
// below, and the transaction retry wrapper is in transact.go).
func (c *Identity) Client() *ethclient.Client { return c.client }

// Signer exposes the chain's nonce-managed signer.
func (c *Identity) Signer() *Signer { return c.signer }

// TransactOpts builds fresh bind.TransactOpts for one transaction attempt,
// consuming the next nonce. gasPrice left nil lets go-ethereum estimate.
func (c *Identity) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	nonce, err := c.signer.nextNonce(ctx, c.client)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.signer.key, new(big.Int).SetUint64(c.ChainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	return opts, nil
}

// CallOpts builds read-only call options bound to the latest state.
func (c *Identity) CallOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

// Reconnect tears down and redials the provider, used by listeners after
// repeated transient failures (spec.md §4.1 "Provider reset").
func (c *Identity) Reconnect(ctx context.Context, endpoint string) error {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("reconnect provider %s: %w", endpoint, err)
	}
	old := c.client
	c.client = client
	if old != nil {
		old.Close()
	}
	c.log.Warnw("provider reconnected", "endpoint", endpoint)
	return nil
}

// BlockNumber fetches the latest block height with view-call retry
// semantics (spec.md §4.1 View call).
func (c *Identity) BlockNumber(ctx context.Context) (uint64, error) {
	var height uint64
	err := WithRetry(ctx, c.ViewRetry, func() error {
		h, err := c.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	if err != nil {
		return 0, &TransportError{Last: err}
	}
	return height, nil
}
