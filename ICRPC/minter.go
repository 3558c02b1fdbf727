package ICRPC

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ybbus/jsonrpc"
)

// Minter burns wrapped balances and releases funds on the external chain.
type Minter struct {
	canisterID string
	rpc        jsonrpc.RPCClient
}

func NewMinter(endpoint, canisterID string, timeout time.Duration) *Minter {
	return &Minter{
		canisterID: canisterID,
		rpc:        newRPCClient(endpoint, timeout),
	}
}

func (m *Minter) CanisterID() string {
	return m.canisterID
}

type withdrawEthWire struct {
	Canister  string `json:"canister"`
	Amount    Nat    `json:"amount"`
	Recipient string `json:"recipient"`
}

type withdrawErc20Wire struct {
	Canister        string `json:"canister"`
	CkErc20LedgerID string `json:"ckerc20_ledger_id"`
	Recipient       string `json:"recipient"`
	Amount          Nat    `json:"amount"`
}

type withdrawalOk struct {
	BlockIndex Nat `json:"block_index"`
}

func (ok withdrawalOk) blockIndex(method string) (*big.Int, error) {
	if ok.BlockIndex.Int == nil {
		return nil, &TransportError{Method: method, Err: errors.New("missing block_index in Ok value")}
	}
	return ok.BlockIndex.Int, nil
}

// WithdrawEth burns amount of the native wrapped asset and returns the
// burn's block index.
func (m *Minter) WithdrawEth(ctx context.Context, amount *big.Int, recipient string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res result
	err := call(m.rpc, &res, "withdraw_eth", withdrawEthWire{
		Canister:  m.canisterID,
		Amount:    NewNat(amount),
		Recipient: recipient,
	})
	if err != nil {
		return nil, err
	}
	var ok withdrawalOk
	if err := res.decode("withdraw_eth", &ok); err != nil {
		return nil, err
	}
	return ok.blockIndex("withdraw_eth")
}

// WithdrawErc20 spends a previously approved allowance on ledgerID.
func (m *Minter) WithdrawErc20(ctx context.Context, ledgerID string, amount *big.Int, recipient string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res result
	err := call(m.rpc, &res, "withdraw_erc20", withdrawErc20Wire{
		Canister:        m.canisterID,
		CkErc20LedgerID: ledgerID,
		Recipient:       recipient,
		Amount:          NewNat(amount),
	})
	if err != nil {
		return nil, err
	}
	var ok withdrawalOk
	if err := res.decode("withdraw_erc20", &ok); err != nil {
		return nil, err
	}
	return ok.blockIndex("withdraw_erc20")
}
