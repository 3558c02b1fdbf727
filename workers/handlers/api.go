package handlers

import (
	"context"
	"math/big"

	"github.com/rs/zerolog"

	"ckbridge/identity"
	"ckbridge/orchestrator"
	"ckbridge/registry"
	"ckbridge/types"
)

type Verifier interface {
	Verify(ctx context.Context, asset types.Asset, hash string) (*types.VerifiedTransaction, error)
	RawReceipt(ctx context.Context, hash string) (string, error)
}

type Bridge interface {
	Withdraw(ctx context.Context, caller identity.Principal, req orchestrator.WithdrawalRequest) (*orchestrator.WithdrawalReceipt, error)
	Approve(ctx context.Context, caller identity.Principal, symbol string, amount *big.Int) (*big.Int, error)
	Transfer(ctx context.Context, caller identity.Principal, symbol string, to identity.Account, amount *big.Int) (*big.Int, error)
	BalanceOf(ctx context.Context, symbol string, account identity.Account) (*big.Int, error)
	ServiceBalance(ctx context.Context, symbol string) (*big.Int, error)
	DepositAddress() (string, error)
	Operations(ctx context.Context, status string) ([]*types.WithdrawalOperation, error)
}

type HashRegistry interface {
	Record(ctx context.Context, asset, hash string) error
	List(ctx context.Context, asset string) ([]string, error)
}

// API holds what the HTTP handlers need. Every field is set once at startup.
type API struct {
	Identities   *identity.Registry
	Assets       map[string]types.Asset
	DefaultAsset string
	Verifier     Verifier
	Bridge       Bridge
	Registry     HashRegistry
	Statuses     registry.StatusStore
	// named liveness probes, e.g. "redis" or "evm"
	Health map[string]func(ctx context.Context) error
	Log    zerolog.Logger
}

func (a *API) asset(symbol string) (types.Asset, error) {
	asset, ok := a.Assets[symbol]
	if !ok {
		return types.Asset{}, types.Errorf(types.ErrCodeUnknownAsset, "unknown asset %q", symbol)
	}
	return asset, nil
}
