// Package adapter binds the Adapter contract: randomness request
// intake and fulfillment (spec.md §4.4/§6). Grounded the same way as
// the controller/coordinator bindings.
package adapter

import (
	"context"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const ABI = `[
{"type":"function","name":"fulfillRandomness","inputs":[
  {"name":"groupIndex","type":"uint32"},
  {"name":"requestId","type":"bytes32"},
  {"name":"signature","type":"uint256"},
  {"name":"partialSignatures","type":"uint256[]"}
],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"getPendingRequestCommitment","inputs":[{"name":"requestId","type":"bytes32"}],"outputs":[{"name":"commitment","type":"bytes32"}],"stateMutability":"view"},
{"type":"function","name":"getLastAssignedGroupIndex","inputs":[],"outputs":[{"name":"groupIndex","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"getLastRandomness","inputs":[],"outputs":[{"name":"randomness","type":"uint256"}],"stateMutability":"view"},
{"type":"event","name":"RandomnessRequest","inputs":[
  {"name":"requestId","type":"bytes32","indexed":false},
  {"name":"subId","type":"uint64","indexed":false},
  {"name":"groupIndex","type":"uint32","indexed":false},
  {"name":"requestConfirmations","type":"uint16","indexed":false},
  {"name":"seed","type":"uint256","indexed":false},
  {"name":"blockNumber","type":"uint256","indexed":false}
],"anonymous":false},
{"type":"event","name":"RandomnessRequestResult","inputs":[
  {"name":"requestId","type":"bytes32","indexed":false},
  {"name":"groupIndex","type":"uint32","indexed":false},
  {"name":"randomness","type":"uint256","indexed":false},
  {"name":"committer","type":"address","indexed":false}
],"anonymous":false}
]`

type Adapter struct {
	address  common.Address
	abi      abi.ABI
	backend  bind.ContractFilterer
	contract *bind.BoundContract
}

func New(address common.Address, backend bind.ContractBackend) (*Adapter, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, err
	}
	return &Adapter{
		address:  address,
		abi:      parsed,
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

func (a *Adapter) Address() common.Address { return a.address }

// FulfillRandomness submits the recovered group signature plus the
// contributing partial signatures, committing the randomness on-chain
// (spec.md §4.4 step 5). The Adapter reverts with "already fulfilled" if
// another committer won the race — callers should treat that revert as
// benign (chain.IsAlreadyFulfilled).
func (a *Adapter) FulfillRandomness(
	opts *bind.TransactOpts,
	groupIndex uint32,
	requestID [32]byte,
	signature *big.Int,
	partialSignatures []*big.Int,
) error {
	_, err := a.contract.Transact(opts, "fulfillRandomness", groupIndex, requestID, signature, partialSignatures)
	return err
}

func (a *Adapter) GetPendingRequestCommitment(opts *bind.CallOpts, requestID [32]byte) ([32]byte, error) {
	var out [32]byte
	err := a.contract.Call(opts, &out, "getPendingRequestCommitment", requestID)
	return out, err
}

func (a *Adapter) GetLastAssignedGroupIndex(opts *bind.CallOpts) (*big.Int, error) {
	var out *big.Int
	err := a.contract.Call(opts, &out, "getLastAssignedGroupIndex")
	return out, err
}

func (a *Adapter) GetLastRandomness(opts *bind.CallOpts) (*big.Int, error) {
	var out *big.Int
	err := a.contract.Call(opts, &out, "getLastRandomness")
	return out, err
}

// RandomnessRequestEvent is one decoded RandomnessRequest log.
type RandomnessRequestEvent struct {
	RequestID            [32]byte
	SubID                uint64
	GroupIndex           uint32
	RequestConfirmations uint16
	Seed                 *big.Int
	BlockNumber          *big.Int
	Raw                  types.Log
}

// FilterRandomnessRequests scans [fromBlock, toBlock] for RandomnessRequest
// logs, used by the randomness task discovery listener to resume scanning
// from a persisted cursor (spec.md §4.3 NewRandomnessTaskListener).
func (a *Adapter) FilterRandomnessRequests(ctx context.Context, fromBlock, toBlock uint64) ([]*RandomnessRequestEvent, error) {
	topic := a.abi.Events["RandomnessRequest"].ID
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{a.address},
		Topics:    [][]common.Hash{{topic}},
	}
	logs, err := a.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]*RandomnessRequestEvent, 0, len(logs))
	for _, l := range logs {
		var ev RandomnessRequestEvent
		if err := a.abi.UnpackIntoInterface(&ev, "RandomnessRequest", l.Data); err != nil {
			return nil, err
		}
		ev.Raw = l
		out = append(out, &ev)
	}
	return out, nil
}
