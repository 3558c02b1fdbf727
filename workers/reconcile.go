package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ckbridge/registry"
	"ckbridge/types"
)

type Verifier interface {
	Verify(ctx context.Context, asset types.Asset, hash string) (*types.VerifiedTransaction, error)
}

const resultVerified = "verified"

// settled outcomes are not checked again; everything else may change with
// time (a pending transaction, a lagging provider).
func settled(result string) bool {
	switch result {
	case resultVerified, string(types.ErrCodeTransactionFailed), string(types.ErrCodeDestinationMismatch):
		return true
	}
	return false
}

// Reconciler re-verifies claimed hashes in the background and records the
// outcome next to the registry. The registry itself is never modified.
type Reconciler struct {
	registry *registry.HashRegistry
	statuses registry.StatusStore
	verifier Verifier
	assets   map[string]types.Asset
	metrics  *Metrics
	now      func() time.Time
	log      zerolog.Logger
}

func NewReconciler(reg *registry.HashRegistry, statuses registry.StatusStore, verifier Verifier, assets map[string]types.Asset, metrics *Metrics, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		registry: reg,
		statuses: statuses,
		verifier: verifier,
		assets:   assets,
		metrics:  metrics,
		now:      time.Now,
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// Worker_reconcileHashes runs a reconcile round every interval until ctx is
// cancelled.
func Worker_reconcileHashes(ctx context.Context, r *Reconciler, interval time.Duration) {
	r.log.Info().Dur("interval", interval).Msg("starting hash reconciler")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("hash reconciler stopped")
			return
		case <-ticker.C:
			for symbol := range r.assets {
				if err := r.ReconcileAsset(ctx, symbol); err != nil {
					r.log.Error().Err(err).Str("asset", symbol).Msg("reconcile round failed")
				}
			}
		}
	}
}

// ReconcileAsset verifies every claimed hash of the asset that has no
// settled outcome yet. Each distinct hash is verified at most once per round.
func (r *Reconciler) ReconcileAsset(ctx context.Context, symbol string) error {
	asset := r.assets[symbol]

	hashes, err := r.registry.List(ctx, symbol)
	if err != nil {
		return err
	}
	known, err := r.statuses.HashStatuses(ctx, symbol)
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(known))
	for _, st := range known {
		done[st.Hash] = settled(st.Result)
	}

	unsettled := 0
	seen := make(map[string]struct{}, len(hashes))
	for _, hash := range hashes {
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		if done[hash] {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		status := types.HashStatus{Hash: hash, Result: resultVerified, CheckedAt: r.now().Unix()}
		if _, err := r.verifier.Verify(ctx, asset, hash); err != nil {
			status.Result = string(types.CodeOf(err))
			if status.Result == "" {
				status.Result = string(types.ErrCodeTransport)
			}
			status.Message = err.Error()
		}
		if !settled(status.Result) {
			unsettled++
		}
		if r.metrics != nil {
			r.metrics.IncReconciled(symbol, status.Result)
		}

		if err := r.statuses.SetHashStatus(ctx, symbol, status); err != nil {
			r.log.Error().Err(err).Str("asset", symbol).Str("hash", hash).Msg("cannot store hash status")
			continue
		}
		r.log.Debug().Str("asset", symbol).Str("hash", hash).Str("result", status.Result).Msg("hash reconciled")
	}

	if r.metrics != nil {
		r.metrics.SetUnsettled(symbol, unsettled)
	}
	return nil
}
