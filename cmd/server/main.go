package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ckbridge/EVMRPC"
	"ckbridge/ICRPC"
	"ckbridge/config"
	"ckbridge/hmacauth"
	"ckbridge/identity"
	"ckbridge/idempotency"
	"ckbridge/logger"
	"ckbridge/orchestrator"
	"ckbridge/postgres"
	"ckbridge/redis"
	"ckbridge/registry"
	"ckbridge/verifier"
	"ckbridge/workers"
	"ckbridge/workers/handlers"
)

// stores groups the persistence the configured backend provides.
type stores struct {
	hashes   registry.Store
	statuses registry.StatusStore
	journal  orchestrator.Journal
	idem     idempotency.Store
	health   map[string]func(ctx context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg config.Configuration, l zerolog.Logger) (*stores, error) {
	switch cfg.Server.RegistryBackend {
	case "redis":
		s := redis.New(fmt.Sprintf("%s:%d", cfg.Server.RedisHost, cfg.Server.RedisPort), l)
		// without persistence do not continue
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		return &stores{
			hashes: s, statuses: s, journal: s, idem: s,
			health: map[string]func(ctx context.Context) error{"redis": s.Ping},
			close:  func() { s.Close() },
		}, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.Server.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &stores{
			hashes: s, statuses: s, journal: s, idem: s,
			health: map[string]func(ctx context.Context) error{"postgres": s.Ping},
			close:  s.Close,
		}, nil
	}
	l.Warn().Msg("memory backend selected, claimed hashes and journal are lost on restart")
	return &stores{
		hashes:   registry.NewMemoryStore(),
		statuses: registry.NewMemoryStatusStore(),
		journal:  orchestrator.NewMemoryJournal(),
		idem:     idempotency.NewMemoryStore(),
		health:   map[string]func(ctx context.Context) error{},
		close:    func() {},
	}, nil
}

func main() {
	config.Init()
	cfg := config.Config

	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Logger = l
	l.Info().Str("backend", cfg.Server.RegistryBackend).Int("providers", len(cfg.EVM.Providers)).Msg("starting ckETH/ckERC20 bridge")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("cannot open stores")
	}
	defer st.close()

	metrics := workers.NewMetrics()

	fetcher := EVMRPC.NewFetcher(cfg.EVM.Providers, cfg.EVM.ReceiptTimeout, l)
	v := verifier.New(fetcher, l).WithObserver(metrics.VerificationObserver(workers.SourceAPI))

	symbols := make([]string, 0, len(config.Assets))
	ledgers := make(map[string]orchestrator.Ledger, len(config.Assets))
	for symbol, asset := range config.Assets {
		symbols = append(symbols, symbol)
		ledgers[symbol] = ICRPC.NewLedger(cfg.Gateway.LedgerURL, asset.LedgerID, cfg.Timeouts.Ledger)
	}
	minter := ICRPC.NewMinter(cfg.Gateway.MinterURL, config.CkSepoliaETHMinter, cfg.Timeouts.Minter)

	orch, err := orchestrator.New(orchestrator.Settings{
		Assets:           config.Assets,
		Controllers:      cfg.Auth.Controllers,
		ServicePrincipal: cfg.Auth.ServicePrincipal,
	}, ledgers, minter, st.journal, l)
	if err != nil {
		l.Fatal().Err(err).Msg("invalid orchestrator settings")
	}
	orch.WithObserver(metrics.IncWithdrawal)

	hashes := registry.New(st.hashes, symbols)
	hashes.OnRecord(metrics.IncRecord)

	health := st.health
	health["evm"] = func(ctx context.Context) error {
		_, err := EVMRPC.LatestBlock(ctx, l, cfg.EVM.Providers)
		return err
	}

	api := &handlers.API{
		Identities:   identity.NewRegistry(config.Identities),
		Assets:       config.Assets,
		DefaultAsset: config.DefaultAsset,
		Verifier:     v,
		Bridge:       orch,
		Registry:     hashes,
		Statuses:     st.statuses,
		Health:       health,
		Log:          l,
	}

	if cfg.Auth.HMACSecret == "" {
		l.Warn().Msg("no hmac secret configured, transfer/approve/withdraw will refuse every caller")
	}
	auth := &hmacauth.Verifier{Secret: cfg.Auth.HMACSecret, MaxSkew: cfg.Auth.MaxSkew}
	idem := &idempotency.Middleware{
		Store:  st.idem,
		Window: idempotency.DefaultWindow,
		Scope:  workers.CallerScope,
		Log:    l,
	}

	background := verifier.New(fetcher, l).WithObserver(metrics.VerificationObserver(workers.SourceReconcile))
	reconciler := workers.NewReconciler(hashes, st.statuses, background, config.Assets, metrics, l)
	go workers.Worker_reconcileHashes(ctx, reconciler, cfg.Reconcile.Interval)

	err = workers.Worker_HTTP(ctx, workers.HTTPOptions{
		Port:     cfg.Server.Port,
		UseSSL:   cfg.Server.UseSSL,
		CertFile: "certchain.pem",
		KeyFile:  "privatekey.pem",
	}, workers.NewRouter(api, auth, idem, metrics, l), l)
	if err != nil {
		l.Error().Err(err).Msg("HTTP service failed")
	}
	stop()
	l.Info().Msg("bridge stopped")
}
