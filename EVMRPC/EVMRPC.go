package EVMRPC

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

var ErrNoProviders = errors.New("no EVM providers configured")

// WithClient tries each provider in turn and returns the first successful
// result. Used for probes where any single provider is good enough; receipt
// verification never goes through here.
func WithClient[T any](ctx context.Context, log zerolog.Logger, urls []string, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	if len(urls) == 0 {
		return res, ErrNoProviders
	}

	var client *ethclient.Client
	for _, url := range urls {
		client, err = ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("error connecting to provider")
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("url", url).Msg("provider call failed")
	}
	return
}

// LatestBlock reports the head block of the first responsive provider.
func LatestBlock(ctx context.Context, log zerolog.Logger, urls []string) (uint64, error) {
	return WithClient(ctx, log, urls, func(client *ethclient.Client) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}
