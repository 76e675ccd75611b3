// Package coordinator binds the per-DKG Coordinator contract: the
// bulletin board members post shares/responses/justifications to during
// the four DKG phases (spec.md §4.2/§6). Shaped like the controller
// binding, grounded the same way on accounts/abi/bind.
package coordinator

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const ABI = `[
{"type":"function","name":"publish","inputs":[{"name":"value","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
{"type":"function","name":"getShares","inputs":[],"outputs":[{"name":"shares","type":"bytes[]"}],"stateMutability":"view"},
{"type":"function","name":"getResponses","inputs":[],"outputs":[{"name":"responses","type":"bytes[]"}],"stateMutability":"view"},
{"type":"function","name":"getJustifications","inputs":[],"outputs":[{"name":"justifications","type":"bytes[]"}],"stateMutability":"view"},
{"type":"function","name":"getParticipants","inputs":[],"outputs":[{"name":"participants","type":"address[]"}],"stateMutability":"view"},
{"type":"function","name":"inPhase","inputs":[],"outputs":[{"name":"phase","type":"int8"}],"stateMutability":"view"},
{"type":"function","name":"startBlock","inputs":[],"outputs":[{"name":"start","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"phaseDuration","inputs":[],"outputs":[{"name":"duration","type":"uint256"}],"stateMutability":"view"}
]`

// Phase mirrors the Coordinator's on-chain phase counter: -1 means DKG
// has ended (or never started), 0-3 the four rounds of spec.md §4.2.
type Phase int8

const (
	PhaseEnded         Phase = -1
	PhaseShare         Phase = 0
	PhaseResponse      Phase = 1
	PhaseJustification Phase = 2
	PhaseOutput        Phase = 3
)

type Coordinator struct {
	address  common.Address
	contract *bind.BoundContract
}

func New(address common.Address, backend bind.ContractBackend) (*Coordinator, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, err
	}
	return &Coordinator{address: address, contract: bind.NewBoundContract(address, parsed, backend, backend, backend)}, nil
}

func (c *Coordinator) Address() common.Address { return c.address }

// Publish posts a DKG round-1/2/3 value (a schnorr-signed envelope: see
// crypto.Scheme.PacketAuth) to the bulletin board.
func (c *Coordinator) Publish(opts *bind.TransactOpts, value []byte) error {
	_, err := c.contract.Transact(opts, "publish", value)
	return err
}

func (c *Coordinator) GetShares(opts *bind.CallOpts) ([][]byte, error) {
	var out [][]byte
	err := c.contract.Call(opts, &out, "getShares")
	return out, err
}

func (c *Coordinator) GetResponses(opts *bind.CallOpts) ([][]byte, error) {
	var out [][]byte
	err := c.contract.Call(opts, &out, "getResponses")
	return out, err
}

func (c *Coordinator) GetJustifications(opts *bind.CallOpts) ([][]byte, error) {
	var out [][]byte
	err := c.contract.Call(opts, &out, "getJustifications")
	return out, err
}

func (c *Coordinator) GetParticipants(opts *bind.CallOpts) ([]common.Address, error) {
	var out []common.Address
	err := c.contract.Call(opts, &out, "getParticipants")
	return out, err
}

func (c *Coordinator) InPhase(opts *bind.CallOpts) (Phase, error) {
	var out int8
	err := c.contract.Call(opts, &out, "inPhase")
	return Phase(out), err
}

func (c *Coordinator) StartBlock(opts *bind.CallOpts) (*big.Int, error) {
	var out *big.Int
	err := c.contract.Call(opts, &out, "startBlock")
	return out, err
}

func (c *Coordinator) PhaseDuration(opts *bind.CallOpts) (*big.Int, error) {
	var out *big.Int
	err := c.contract.Call(opts, &out, "phaseDuration")
	return out, err
}
