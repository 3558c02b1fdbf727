package ICRPC

import (
	"context"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/ybbus/jsonrpc"

	"ckbridge/identity"
)

// Ledger talks to one token ledger through the gateway.
type Ledger struct {
	canisterID string
	rpc        jsonrpc.RPCClient
}

func NewLedger(endpoint, canisterID string, timeout time.Duration) *Ledger {
	return &Ledger{
		canisterID: canisterID,
		rpc:        newRPCClient(endpoint, timeout),
	}
}

func (l *Ledger) CanisterID() string {
	return l.canisterID
}

type balanceArgs struct {
	Canister string           `json:"canister"`
	Account  identity.Account `json:"account"`
}

func (l *Ledger) BalanceOf(ctx context.Context, account identity.Account) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out Nat
	if err := call(l.rpc, &out, "icrc1_balance_of", balanceArgs{Canister: l.canisterID, Account: account}); err != nil {
		return nil, err
	}
	return out.Int, nil
}

type TransferArgs struct {
	FromSubaccount *identity.Subaccount
	To             identity.Account
	Amount         *big.Int
}

type transferWire struct {
	Canister       string           `json:"canister"`
	FromSubaccount *string          `json:"from_subaccount"`
	To             identity.Account `json:"to"`
	Amount         Nat              `json:"amount"`
	Fee            *Nat             `json:"fee"`
	Memo           *string          `json:"memo"`
	CreatedAtTime  *uint64          `json:"created_at_time"`
}

// Transfer returns the ledger block index of the transfer.
func (l *Ledger) Transfer(ctx context.Context, args TransferArgs) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res result
	err := call(l.rpc, &res, "icrc1_transfer", transferWire{
		Canister:       l.canisterID,
		FromSubaccount: subaccountHex(args.FromSubaccount),
		To:             args.To,
		Amount:         NewNat(args.Amount),
	})
	if err != nil {
		return nil, err
	}
	var block Nat
	if err := res.decode("icrc1_transfer", &block); err != nil {
		return nil, err
	}
	return block.Int, nil
}

type ApproveArgs struct {
	FromSubaccount *identity.Subaccount
	Spender        identity.Account
	Amount         *big.Int
}

type approveWire struct {
	Canister          string           `json:"canister"`
	FromSubaccount    *string          `json:"from_subaccount"`
	Spender           identity.Account `json:"spender"`
	Amount            Nat              `json:"amount"`
	ExpectedAllowance *Nat             `json:"expected_allowance"`
	ExpiresAt         *uint64          `json:"expires_at"`
	Fee               *Nat             `json:"fee"`
	Memo              *string          `json:"memo"`
	CreatedAtTime     *uint64          `json:"created_at_time"`
}

// Approve grants Spender an allowance and returns the ledger block index.
func (l *Ledger) Approve(ctx context.Context, args ApproveArgs) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res result
	err := call(l.rpc, &res, "icrc2_approve", approveWire{
		Canister:       l.canisterID,
		FromSubaccount: subaccountHex(args.FromSubaccount),
		Spender:        args.Spender,
		Amount:         NewNat(args.Amount),
	})
	if err != nil {
		return nil, err
	}
	var block Nat
	if err := res.decode("icrc2_approve", &block); err != nil {
		return nil, err
	}
	return block.Int, nil
}

func subaccountHex(sub *identity.Subaccount) *string {
	if sub == nil {
		return nil
	}
	s := hex.EncodeToString(sub[:])
	return &s
}
