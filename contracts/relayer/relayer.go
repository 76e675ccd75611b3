// Package relayer binds the ControllerRelayer contract deployed on each
// relayed chain: a thin mirror of the main chain's group identity, kept
// in sync by PostGroupingSubscriber's group-relay dynamic task
// (SPEC_FULL §12, supplemented from original_source/).
package relayer

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const ABI = `[
{"type":"function","name":"setGroupRelay","inputs":[
  {"name":"groupIndex","type":"uint32"},
  {"name":"epoch","type":"uint32"},
  {"name":"publicKey","type":"bytes"}
],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"getGroupEpoch","inputs":[],"outputs":[{"name":"epoch","type":"uint32"}],"stateMutability":"view"}
]`

type Relayer struct {
	address  common.Address
	contract *bind.BoundContract
}

func New(address common.Address, backend bind.ContractBackend) (*Relayer, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, err
	}
	return &Relayer{address: address, contract: bind.NewBoundContract(address, parsed, backend, backend, backend)}, nil
}

func (r *Relayer) Address() common.Address { return r.address }

// SetGroupRelay pushes the main chain's newly-formed group identity to
// this relayed chain.
func (r *Relayer) SetGroupRelay(opts *bind.TransactOpts, groupIndex, epoch uint32, publicKey []byte) error {
	_, err := r.contract.Transact(opts, "setGroupRelay", groupIndex, epoch, publicKey)
	return err
}

func (r *Relayer) GetGroupEpoch(opts *bind.CallOpts) (uint32, error) {
	var out uint32
	err := r.contract.Call(opts, &out, "getGroupEpoch")
	return out, err
}
