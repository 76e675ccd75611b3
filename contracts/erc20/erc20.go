// Package erc20 binds the ARPA token contract, used only for the
// management RPC's balance/allowance observability surface (spec.md
// §4.7 GetNodeInfo, SPEC_FULL §12 staking observability).
package erc20

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const ABI = `[
{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"}
]`

type ERC20 struct {
	address  common.Address
	contract *bind.BoundContract
}

func New(address common.Address, backend bind.ContractBackend) (*ERC20, error) {
	parsed, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		return nil, err
	}
	return &ERC20{address: address, contract: bind.NewBoundContract(address, parsed, backend, backend, backend)}, nil
}

func (e *ERC20) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.contract.Call(opts, &out, "balanceOf", account)
	return out, err
}

func (e *ERC20) Allowance(opts *bind.CallOpts, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.contract.Call(opts, &out, "allowance", owner, spender)
	return out, err
}

func (e *ERC20) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) error {
	_, err := e.contract.Transact(opts, "approve", spender, amount)
	return err
}
