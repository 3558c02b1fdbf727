package verifier

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"ckbridge/types"
)

// ReceiptFetcher is the multi-provider receipt source.
type ReceiptFetcher interface {
	FetchReceipt(ctx context.Context, hash string) types.ReceiptQueryResult
}

// Observer is notified of every verification outcome, "verified" or the
// rejecting error code.
type Observer func(result string)

type Verifier struct {
	fetcher ReceiptFetcher
	observe Observer
	log     zerolog.Logger
}

func New(fetcher ReceiptFetcher, log zerolog.Logger) *Verifier {
	return &Verifier{
		fetcher: fetcher,
		log:     log.With().Str("component", "verifier").Logger(),
	}
}

func (v *Verifier) WithObserver(o Observer) *Verifier {
	v.observe = o
	return v
}

// Verify decides whether hash is a successful transaction to the asset's
// counterpart address. Each rejection is final for the call.
func (v *Verifier) Verify(ctx context.Context, asset types.Asset, hash string) (*types.VerifiedTransaction, error) {
	tx, err := v.verify(ctx, asset, hash)
	result := "verified"
	if err != nil {
		result = string(types.CodeOf(err))
		v.log.Info().Err(err).Str("asset", asset.Symbol).Str("hash", hash).Msg("verification rejected")
	} else {
		v.log.Debug().Str("asset", asset.Symbol).Str("hash", hash).Str("block", tx.BlockNumber).Msg("verification passed")
	}
	if v.observe != nil {
		v.observe(result)
	}
	return tx, err
}

func (v *Verifier) verify(ctx context.Context, asset types.Asset, hash string) (*types.VerifiedTransaction, error) {
	if strings.TrimSpace(hash) == "" {
		return nil, types.Errorf(types.ErrCodeInvalidArgument, "empty transaction hash").WithAsset(asset.Symbol)
	}

	res := v.fetcher.FetchReceipt(ctx, hash)
	switch res.Outcome {
	case types.OutcomeTransportFailure:
		return nil, types.Errorf(types.ErrCodeTransport, "%s", res.Reason).
			WithAsset(asset.Symbol).
			WithContext("providers", res.Providers)
	case types.OutcomeDisagreement:
		return nil, types.Errorf(types.ErrCodeInconsistentSources, "%s", res.Reason).
			WithAsset(asset.Symbol).
			WithContext("providers", res.Providers)
	case types.OutcomeAgreed:
	default:
		return nil, types.Errorf(types.ErrCodeTransport, "unexpected fetch outcome %s", res.Outcome).WithAsset(asset.Symbol)
	}

	receipt := res.Receipt
	if receipt == nil {
		return nil, types.Errorf(types.ErrCodeReceiptNotFound, "transaction %s is unknown to all providers", hash).WithAsset(asset.Symbol)
	}
	if receipt.Status != "1" {
		return nil, types.Errorf(types.ErrCodeTransactionFailed, "transaction %s has status %s", hash, receipt.Status).
			WithAsset(asset.Symbol).
			WithContext("status", receipt.Status)
	}
	if receipt.To != asset.CounterpartAddress {
		return nil, types.Errorf(types.ErrCodeDestinationMismatch, "transaction %s was sent to %s", hash, receipt.To).
			WithAsset(asset.Symbol).
			WithContext("to", receipt.To).
			WithContext("expected", asset.CounterpartAddress)
	}

	tx := types.VerifiedTransaction(*receipt)
	return &tx, nil
}

// receiptEnvelope is the Ok/Err shape returned by the raw receipt query.
type receiptEnvelope struct {
	Ok  *types.ReceiptData `json:"Ok,omitempty"`
	Err string             `json:"Err,omitempty"`
}

// RawReceipt runs the fetch alone and serializes what came back, without
// any of the business checks. Disagreement and transport failures are
// rendered as Err.
func (v *Verifier) RawReceipt(ctx context.Context, hash string) (string, error) {
	var env receiptEnvelope
	res := v.fetcher.FetchReceipt(ctx, hash)
	switch {
	case res.Outcome != types.OutcomeAgreed:
		env.Err = res.Outcome.String() + ": " + res.Reason
	case res.Receipt == nil:
		env.Err = "receipt not found"
	default:
		env.Ok = res.Receipt
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", types.NewError(types.ErrCodeTransport, "cannot serialize receipt", err)
	}
	return string(out), nil
}
