package EVMRPC

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ckbridge/types"
)

// Fetcher queries every configured provider for the same receipt and only
// reports a receipt when all of them returned the same answer.
type Fetcher struct {
	providers []string
	timeout   time.Duration
	call      ReceiptCaller
	log       zerolog.Logger
}

func NewFetcher(providers []string, timeout time.Duration, log zerolog.Logger) *Fetcher {
	return NewFetcherWithCaller(providers, timeout, CallReceipt, log)
}

func NewFetcherWithCaller(providers []string, timeout time.Duration, call ReceiptCaller, log zerolog.Logger) *Fetcher {
	p := make([]string, len(providers))
	copy(p, providers)
	return &Fetcher{
		providers: p,
		timeout:   timeout,
		call:      call,
		log:       log.With().Str("component", "receipt_fetcher").Logger(),
	}
}

func (f *Fetcher) Providers() []string {
	out := make([]string, len(f.providers))
	copy(out, f.providers)
	return out
}

type providerAnswer struct {
	receipt *types.ReceiptData
	err     error
}

// FetchReceipt never retries; a provider that times out counts as failed.
func (f *Fetcher) FetchReceipt(ctx context.Context, hash string) types.ReceiptQueryResult {
	if len(f.providers) == 0 {
		return types.TransportFailure(ErrNoProviders.Error(), nil)
	}

	answers := make([]providerAnswer, len(f.providers))
	var g errgroup.Group
	for i, url := range f.providers {
		i, url := i, url
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			receipt, err := f.call(callCtx, url, hash)
			answers[i] = providerAnswer{receipt: receipt, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return f.reconcile(hash, answers)
}

func (f *Fetcher) reconcile(hash string, answers []providerAnswer) types.ReceiptQueryResult {
	details := make([]types.ProviderResult, len(answers))
	failed := 0
	for i, a := range answers {
		details[i] = types.ProviderResult{Provider: f.providers[i], Receipt: a.receipt}
		if a.err != nil {
			failed++
			details[i].Error = a.err.Error()
			f.log.Warn().Err(a.err).Str("provider", f.providers[i]).Str("hash", hash).Msg("provider query failed")
		}
	}

	if failed == len(answers) {
		return types.TransportFailure(fmt.Sprintf("all %d providers failed", failed), details)
	}
	// a partial answer set cannot be called agreement
	if failed > 0 {
		return types.Disagreement(details)
	}

	first := answers[0].receipt
	for _, a := range answers[1:] {
		if !reflect.DeepEqual(first, a.receipt) {
			return types.Disagreement(details)
		}
	}
	return types.Agreed(first, details)
}
