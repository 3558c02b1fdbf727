package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ckbridge/ICRPC"
	"ckbridge/identity"
	"ckbridge/types"
)

// Ledger is the subset of a token ledger the orchestrator drives.
type Ledger interface {
	BalanceOf(ctx context.Context, account identity.Account) (*big.Int, error)
	Transfer(ctx context.Context, args ICRPC.TransferArgs) (*big.Int, error)
	Approve(ctx context.Context, args ICRPC.ApproveArgs) (*big.Int, error)
}

type Minter interface {
	WithdrawEth(ctx context.Context, amount *big.Int, recipient string) (*big.Int, error)
	WithdrawErc20(ctx context.Context, ledgerID string, amount *big.Int, recipient string) (*big.Int, error)
}

type Settings struct {
	Assets           map[string]types.Asset
	Controllers      []string
	ServicePrincipal string
}

type WithdrawalRequest struct {
	Asset     string
	Amount    *big.Int
	Recipient string
}

type WithdrawalReceipt struct {
	OperationID        string   `json:"operationId"`
	Asset              string   `json:"asset"`
	ApprovalBlockIndex *big.Int `json:"approvalBlockIndex,omitempty"`
	WithdrawBlockIndex *big.Int `json:"withdrawBlockIndex"`
}

type Orchestrator struct {
	assets      map[string]types.Asset
	ledgers     map[string]Ledger
	minters     map[string]identity.Principal
	minter      Minter
	controllers map[string]struct{}
	service     identity.Principal
	journal     Journal
	observe     func(asset, result string)
	now         func() time.Time
	log         zerolog.Logger
}

// New checks that every configured asset has a ledger and a parseable
// minter identity.
func New(settings Settings, ledgers map[string]Ledger, minter Minter, journal Journal, log zerolog.Logger) (*Orchestrator, error) {
	if journal == nil {
		journal = NewMemoryJournal()
	}
	o := &Orchestrator{
		assets:      settings.Assets,
		ledgers:     ledgers,
		minters:     make(map[string]identity.Principal, len(settings.Assets)),
		minter:      minter,
		controllers: make(map[string]struct{}, len(settings.Controllers)),
		journal:     journal,
		now:         time.Now,
		log:         log.With().Str("component", "orchestrator").Logger(),
	}

	for symbol, asset := range settings.Assets {
		if _, ok := ledgers[symbol]; !ok {
			return nil, fmt.Errorf("no ledger for asset %s", symbol)
		}
		p, err := identity.ParsePrincipal(asset.MinterID)
		if err != nil {
			return nil, fmt.Errorf("asset %s minter: %w", symbol, err)
		}
		o.minters[symbol] = p
	}
	for _, c := range settings.Controllers {
		p, err := identity.ParsePrincipal(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("controller %q: %w", c, err)
		}
		o.controllers[string(p)] = struct{}{}
	}
	if settings.ServicePrincipal != "" {
		p, err := identity.ParsePrincipal(settings.ServicePrincipal)
		if err != nil {
			return nil, fmt.Errorf("service principal: %w", err)
		}
		o.service = p
	}
	return o, nil
}

// WithObserver registers a hook called once per withdrawal with the asset
// and its final journal status.
func (o *Orchestrator) WithObserver(f func(asset, result string)) *Orchestrator {
	o.observe = f
	return o
}

func (o *Orchestrator) IsController(p identity.Principal) bool {
	_, ok := o.controllers[string(p)]
	return ok
}

func (o *Orchestrator) lookup(symbol string) (types.Asset, Ledger, error) {
	asset, ok := o.assets[symbol]
	if !ok {
		return types.Asset{}, nil, types.Errorf(types.ErrCodeUnknownAsset, "unknown asset %q", symbol)
	}
	return asset, o.ledgers[symbol], nil
}

func checkAmount(asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return types.Errorf(types.ErrCodeInvalidArgument, "amount must be a non-negative integer").WithAsset(asset)
	}
	return nil
}

// callError codes a failed ledger or minter call. A call that got no usable
// answer is a transport failure; an explicit rejection keeps the given code.
func callError(err error, rejected types.ErrorCode, message string) *types.BridgeError {
	var te *ICRPC.TransportError
	if errors.As(err, &te) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrCodeTransport, message, err)
	}
	return types.NewError(rejected, message, err)
}

func checkCaller(caller identity.Principal) error {
	if len(caller) == 0 {
		return types.Errorf(types.ErrCodeUnauthorized, "caller identity required")
	}
	return nil
}

// Withdraw releases funds to recipient on the external chain. Native
// withdrawals spend the pooled balance and need a controller; fungible ones
// approve the minter from the caller's own subaccount first and only then
// ask it to withdraw.
func (o *Orchestrator) Withdraw(ctx context.Context, caller identity.Principal, req WithdrawalRequest) (*WithdrawalReceipt, error) {
	asset, ledger, err := o.lookup(req.Asset)
	if err != nil {
		return nil, err
	}
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if err := checkAmount(asset.Symbol, req.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, types.Errorf(types.ErrCodeInvalidArgument, "recipient is required").WithAsset(asset.Symbol)
	}

	op := &types.WithdrawalOperation{
		Asset:     asset.Symbol,
		Caller:    caller.String(),
		Amount:    req.Amount.String(),
		Recipient: req.Recipient,
	}

	switch asset.Kind {
	case types.NativeWrappedAsset:
		if !o.IsController(caller) {
			return nil, types.Errorf(types.ErrCodeUnauthorized, "native withdrawals are restricted to controllers").WithAsset(asset.Symbol)
		}
		return o.withdrawNative(ctx, asset, op, req)
	case types.FungibleWrappedAsset:
		return o.withdrawFungible(ctx, asset, ledger, caller, op, req)
	}
	return nil, types.Errorf(types.ErrCodeUnknownAsset, "asset %s has unsupported kind %s", asset.Symbol, asset.Kind)
}

func (o *Orchestrator) withdrawNative(ctx context.Context, asset types.Asset, op *types.WithdrawalOperation, req WithdrawalRequest) (*WithdrawalReceipt, error) {
	o.begin(ctx, op, types.StatusWithdrawing)

	block, err := o.minter.WithdrawEth(ctx, req.Amount, req.Recipient)
	if err != nil {
		o.advance(ctx, op, types.StatusWithdrawFail, err.Error())
		return nil, callError(err, types.ErrCodeWithdrawalFailed, "withdrawal failed").
			WithAsset(asset.Symbol).
			WithContext("operationId", op.ID)
	}

	op.WithdrawBlockIndex = block.String()
	o.advance(ctx, op, types.StatusSubmitted, "")
	return &WithdrawalReceipt{OperationID: op.ID, Asset: asset.Symbol, WithdrawBlockIndex: block}, nil
}

func (o *Orchestrator) withdrawFungible(ctx context.Context, asset types.Asset, ledger Ledger, caller identity.Principal, op *types.WithdrawalOperation, req WithdrawalRequest) (*WithdrawalReceipt, error) {
	o.begin(ctx, op, types.StatusApproving)

	approval, err := o.approve(ctx, asset, ledger, caller, req.Amount)
	if err != nil {
		o.advance(ctx, op, types.StatusApproveFail, err.Error())
		return nil, callError(err, types.ErrCodeApprovalFailed, "approval failed").
			WithAsset(asset.Symbol).
			WithContext("operationId", op.ID)
	}
	op.ApprovalBlockIndex = approval.String()
	o.advance(ctx, op, types.StatusApproved, "")

	o.advance(ctx, op, types.StatusWithdrawing, "")
	block, err := o.minter.WithdrawErc20(ctx, asset.LedgerID, req.Amount, req.Recipient)
	if err != nil {
		o.advance(ctx, op, types.StatusWithdrawFail, err.Error())
		return nil, callError(err, types.ErrCodeWithdrawalFailed, "withdrawal failed").
			WithAsset(asset.Symbol).
			WithContext("operationId", op.ID).
			WithContext("approvalBlockIndex", op.ApprovalBlockIndex)
	}

	op.WithdrawBlockIndex = block.String()
	o.advance(ctx, op, types.StatusSubmitted, "")
	return &WithdrawalReceipt{
		OperationID:        op.ID,
		Asset:              asset.Symbol,
		ApprovalBlockIndex: approval,
		WithdrawBlockIndex: block,
	}, nil
}

func (o *Orchestrator) approve(ctx context.Context, asset types.Asset, ledger Ledger, caller identity.Principal, amount *big.Int) (*big.Int, error) {
	sub := identity.SubaccountFromPrincipal(caller)
	return ledger.Approve(ctx, ICRPC.ApproveArgs{
		FromSubaccount: &sub,
		Spender:        identity.NewAccount(o.minters[asset.Symbol], nil),
		Amount:         amount,
	})
}

// Approve lets the asset's minter spend amount from the caller's own
// subaccount and returns the approval's block index.
func (o *Orchestrator) Approve(ctx context.Context, caller identity.Principal, symbol string, amount *big.Int) (*big.Int, error) {
	asset, ledger, err := o.lookup(symbol)
	if err != nil {
		return nil, err
	}
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if err := checkAmount(asset.Symbol, amount); err != nil {
		return nil, err
	}

	block, err := o.approve(ctx, asset, ledger, caller, amount)
	if err != nil {
		return nil, callError(err, types.ErrCodeApprovalFailed, "approval failed").WithAsset(asset.Symbol)
	}
	o.log.Info().Str("asset", asset.Symbol).Str("caller", caller.String()).Str("block", block.String()).Msg("approval granted")
	return block, nil
}

func (o *Orchestrator) BalanceOf(ctx context.Context, symbol string, account identity.Account) (*big.Int, error) {
	_, ledger, err := o.lookup(symbol)
	if err != nil {
		return nil, err
	}
	bal, err := ledger.BalanceOf(ctx, account)
	if err != nil {
		return nil, types.NewError(types.ErrCodeTransport, "cannot read balance", err).WithAsset(symbol)
	}
	return bal, nil
}

// ServiceBalance reads the service's default account.
func (o *Orchestrator) ServiceBalance(ctx context.Context, symbol string) (*big.Int, error) {
	if len(o.service) == 0 {
		return nil, types.Errorf(types.ErrCodeInvalidArgument, "service principal is not configured")
	}
	return o.BalanceOf(ctx, symbol, identity.NewAccount(o.service, nil))
}

// DepositAddress is the bytes32 the minter credits deposits to.
func (o *Orchestrator) DepositAddress() (string, error) {
	if len(o.service) == 0 {
		return "", types.Errorf(types.ErrCodeInvalidArgument, "service principal is not configured")
	}
	return identity.SubaccountFromPrincipal(o.service).Hex(), nil
}

// Transfer moves amount from the service's default account. Fee, memo and
// creation time are left to the ledger's defaults.
func (o *Orchestrator) Transfer(ctx context.Context, caller identity.Principal, symbol string, to identity.Account, amount *big.Int) (*big.Int, error) {
	asset, ledger, err := o.lookup(symbol)
	if err != nil {
		return nil, err
	}
	if !o.IsController(caller) {
		return nil, types.Errorf(types.ErrCodeUnauthorized, "transfers from the service account are restricted to controllers").WithAsset(asset.Symbol)
	}
	if err := checkAmount(asset.Symbol, amount); err != nil {
		return nil, err
	}

	block, err := ledger.Transfer(ctx, ICRPC.TransferArgs{To: to, Amount: amount})
	if err != nil {
		return nil, callError(err, types.ErrCodeTransferFailed, "transfer failed").WithAsset(asset.Symbol)
	}
	o.log.Info().Str("asset", asset.Symbol).Str("to", to.String()).Str("amount", amount.String()).Str("block", block.String()).Msg("transfer done")
	return block, nil
}

// Operations lists journaled withdrawals in the given status.
func (o *Orchestrator) Operations(ctx context.Context, status string) ([]*types.WithdrawalOperation, error) {
	if !types.IsWithdrawalStatus(status) {
		return nil, types.Errorf(types.ErrCodeInvalidArgument, "unknown status %q", status)
	}
	ops, err := o.journal.FindByStatus(ctx, status)
	if err != nil {
		return nil, types.NewError(types.ErrCodeStorage, "cannot read operations", err)
	}
	return ops, nil
}
