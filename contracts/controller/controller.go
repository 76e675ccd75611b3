// Package controller is a hand-maintained abi/bind binding for the
// Controller contract (spec.md §6), shaped like abigen output (see
// accounts/abi/bind's generated contract wrappers in the go-ethereum
// corpus, e.g. contracts/tests/contract/Inherited.go) but trimmed to the
// methods the node actually calls.
package controller

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ABI is the input ABI used to generate this binding, trimmed to the
// surface spec.md §6 names.
const ABI = `[
{"type":"function","name":"nodeRegister","inputs":[{"name":"dkgPublicKey","type":"bytes"},{"name":"nodeRpcEndpoint","type":"string"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"nodeActivate","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"nodeQuit","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"changeDkgPublicKey","inputs":[{"name":"dkgPublicKey","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"nodeWithdraw","inputs":[{"name":"recipient","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"commitDkg","inputs":[
  {"name":"groupIndex","type":"uint32"},
  {"name":"epoch","type":"uint32"},
  {"name":"publicKey","type":"bytes"},
  {"name":"partialPublicKey","type":"bytes"},
  {"name":"disqualifiedNodes","type":"address[]"}
],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"postProcessDkg","inputs":[{"name":"groupIndex","type":"uint32"},{"name":"epoch","type":"uint32"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"getNode","inputs":[{"name":"nodeAddress","type":"address"}],"outputs":[{"name":"idAddress","type":"address"},{"name":"nodeRpcEndpoint","type":"string"},{"name":"dkgPublicKey","type":"bytes"},{"name":"state","type":"bool"},{"name":"pendingUntilBlock","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"getGroup","inputs":[{"name":"groupIndex","type":"uint32"}],"outputs":[
  {"name":"epoch","type":"uint32"},
  {"name":"size","type":"uint256"},
  {"name":"threshold","type":"uint256"},
  {"name":"isStrictlyMajorityConsensusReached","type":"bool"},
  {"name":"publicKey","type":"bytes"}
],"stateMutability":"view"},
{"type":"function","name":"getGroupEpoch","inputs":[],"outputs":[{"name":"epoch","type":"uint32"}],"stateMutability":"view"},
{"type":"function","name":"getGroupCount","inputs":[],"outputs":[{"name":"count","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"getValidGroupIndices","inputs":[],"outputs":[{"name":"indices","type":"uint32[]"}],"stateMutability":"view"},
{"type":"function","name":"getBelongingGroup","inputs":[{"name":"nodeAddress","type":"address"}],"outputs":[{"name":"groupIndex","type":"int256"},{"name":"memberIndex","type":"int256"}],"stateMutability":"view"},
{"type":"function","name":"getCoordinator","inputs":[{"name":"groupIndex","type":"uint32"}],"outputs":[{"name":"coordinatorAddress","type":"address"}],"stateMutability":"view"},
{"type":"function","name":"getControllerConfig","inputs":[],"outputs":[{"name":"data","type":"bytes"}],"stateMutability":"view"},
{"type":"event","name":"DKGTask","inputs":[
  {"name":"groupIndex","type":"uint32","indexed":false},
  {"name":"epoch","type":"uint32","indexed":false},
  {"name":"members","type":"address[]","indexed":false},
  {"name":"phaseDurationBlocks","type":"uint256","indexed":false},
  {"name":"startBlock","type":"uint256","indexed":false},
  {"name":"coordinatorAddress","type":"address","indexed":false}
],"anonymous":false}
]`

// Controller is the generated-style binding: caller + transactor, the same
// shape abigen would emit.
type Controller struct {
	address common.Address
	contract *bind.BoundContract
}

// New binds a Controller instance at address using backend for calls,
// transactions and log filtering.
func New(address common.Address, backend bind.ContractBackend) (*Controller, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, err
	}
	return &Controller{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

func (c *Controller) Address() common.Address { return c.address }

// --- transactions ---

func (c *Controller) NodeRegister(opts *bind.TransactOpts, dkgPublicKey []byte, nodeRPCEndpoint string) (*TxResult, error) {
	tx, err := c.contract.Transact(opts, "nodeRegister", dkgPublicKey, nodeRPCEndpoint)
	return wrap(tx, err)
}

func (c *Controller) NodeActivate(opts *bind.TransactOpts) (*TxResult, error) {
	tx, err := c.contract.Transact(opts, "nodeActivate")
	return wrap(tx, err)
}

func (c *Controller) NodeQuit(opts *bind.TransactOpts) (*TxResult, error) {
	tx, err := c.contract.Transact(opts, "nodeQuit")
	return wrap(tx, err)
}

func (c *Controller) ChangeDkgPublicKey(opts *bind.TransactOpts, dkgPublicKey []byte) (*TxResult, error) {
	tx, err := c.contract.Transact(opts, "changeDkgPublicKey", dkgPublicKey)
	return wrap(tx, err)
}

func (c *Controller) NodeWithdraw(opts *bind.TransactOpts, recipient common.Address) (*TxResult, error) {
	tx, err := c.contract.Transact(opts, "nodeWithdraw", recipient)
	return wrap(tx, err)
}

// CommitDkg submits the DKG phase-4 output to the Controller, which
// performs majority-agreement across submissions before transitioning
// the group to ready (spec.md §4.5).
func (c *Controller) CommitDkg(
	opts *bind.TransactOpts,
	groupIndex, epoch uint32,
	publicKey, partialPublicKey []byte,
	disqualified []common.Address,
) (*TxResult, error) {
	tx, err := c.contract.Transact(opts, "commitDkg", groupIndex, epoch, publicKey, partialPublicKey, disqualified)
	return wrap(tx, err)
}

func (c *Controller) PostProcessDkg(opts *bind.TransactOpts, groupIndex, epoch uint32) (*TxResult, error) {
	tx, err := c.contract.Transact(opts, "postProcessDkg", groupIndex, epoch)
	return wrap(tx, err)
}

// --- views ---

type NodeInfo struct {
	IDAddress         common.Address
	RPCEndpoint       string
	DKGPublicKey      []byte
	State             bool
	PendingUntilBlock *big.Int
}

func (c *Controller) GetNode(opts *bind.CallOpts, nodeAddress common.Address) (*NodeInfo, error) {
	out := new(NodeInfo)
	err := c.contract.Call(opts, out, "getNode", nodeAddress)
	return out, err
}

// GroupView is the on-chain snapshot of one grouping attempt's
// consensus state (spec.md §3 Group: epoch/size/threshold/state/public_key).
type GroupView struct {
	Epoch                              uint32
	Size                               *big.Int
	Threshold                          *big.Int
	IsStrictlyMajorityConsensusReached bool
	PublicKey                          []byte
}

func (c *Controller) GetGroup(opts *bind.CallOpts, groupIndex uint32) (*GroupView, error) {
	out := new(GroupView)
	err := c.contract.Call(opts, out, "getGroup", groupIndex)
	return out, err
}

func (c *Controller) GetGroupEpoch(opts *bind.CallOpts) (uint32, error) {
	var out uint32
	err := c.contract.Call(opts, &out, "getGroupEpoch")
	return out, err
}

func (c *Controller) GetGroupCount(opts *bind.CallOpts) (*big.Int, error) {
	var out *big.Int
	err := c.contract.Call(opts, &out, "getGroupCount")
	return out, err
}

func (c *Controller) GetValidGroupIndices(opts *bind.CallOpts) ([]uint32, error) {
	var out []uint32
	err := c.contract.Call(opts, &out, "getValidGroupIndices")
	return out, err
}

func (c *Controller) GetBelongingGroup(opts *bind.CallOpts, nodeAddress common.Address) (groupIndex, memberIndex *big.Int, err error) {
	var ret []interface{}
	err = c.contract.Call(opts, &ret, "getBelongingGroup", nodeAddress)
	if err != nil {
		return nil, nil, err
	}
	return ret[0].(*big.Int), ret[1].(*big.Int), nil
}

func (c *Controller) GetCoordinator(opts *bind.CallOpts, groupIndex uint32) (common.Address, error) {
	var out common.Address
	err := c.contract.Call(opts, &out, "getCoordinator", groupIndex)
	return out, err
}

func (c *Controller) GetControllerConfig(opts *bind.CallOpts) ([]byte, error) {
	var out []byte
	err := c.contract.Call(opts, &out, "getControllerConfig")
	return out, err
}

// TxResult is the trimmed result of a transaction submission: abigen
// normally returns *types.Transaction directly, we additionally carry
// nothing extra here but keep a named type so call sites read clearly.
type TxResult struct {
	Hash string
}

func wrap(tx interface{ Hash() common.Hash }, err error) (*TxResult, error) {
	if err != nil {
		return nil, err
	}
	return &TxResult{Hash: tx.Hash().Hex()}, nil
}
