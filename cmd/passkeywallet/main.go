package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/ceremony"
	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/memory"
	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/paymaster"
	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/passkeywallet/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/passkeywallet/internal/adapter/driven/vault"
	httphandler "github.com/ericfisherdev/passkeywallet/internal/adapter/driving/http"
	"github.com/ericfisherdev/passkeywallet/internal/application"
	"github.com/ericfisherdev/passkeywallet/internal/config"
	"github.com/ericfisherdev/passkeywallet/internal/domain/port/driven"
	"github.com/ericfisherdev/passkeywallet/internal/logger"
)

// retryGrace covers backoff sleeps between provider attempts.
const retryGrace = 2 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.SetupDefault(cfg.LogLevel)
	log.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.StoreDriver,
		"ceremony_provider", cfg.CeremonyProvider,
		"paymaster_order", cfg.PaymasterOrder,
		"chain_id", cfg.ChainID,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the credential store and run its migrations.
	store, closer, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			log.Error("error closing credential store", "error", closeErr)
		}
	}()

	// 4. Wire driven adapters.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	provider := newCeremonyProvider(cfg, log)

	providers, err := newPaymasters(cfg, log)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		log.Warn("no paymaster endpoints configured, sponsorship and submission will fail")
	}

	// 5. Create application services.
	ceremonies := application.NewCeremonyService(store, provider, collector, log, application.CeremonySettings{
		RPID:            cfg.RPID,
		RPName:          cfg.RPName,
		IdentitySalt:    cfg.IdentitySalt,
		CeremonyTimeout: cfg.CeremonyTimeout,
		WalletSLA:       cfg.WalletSLA,
	})
	signer := application.NewSigningService(ceremonies, log)
	adapterTimeout := cfg.ProviderTimeout*time.Duration(cfg.ProviderMaxRetries+1) + retryGrace*time.Duration(cfg.ProviderMaxRetries)
	paymasters := application.NewPaymasterService(providers, adapterTimeout, collector, log)
	sessions := application.NewSessionStore(cfg.SessionTTL)

	monitor := application.NewHealthMonitor(paymasters, cfg.HealthInterval, log)
	go monitor.Start(ctx)

	// 6. Create HTTP handler and router.
	limiter := httphandler.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	defer limiter.Stop()

	handler := httphandler.NewHandler(httphandler.Deps{
		Ceremonies: ceremonies,
		Signer:     signer,
		Paymaster:  paymasters,
		Sessions:   sessions,
		Monitor:    monitor,
		AdminToken: cfg.AdminToken,
	}, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewRouter(handler, limiter, metrics.Handler(registry), log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Ceremonies wait on the user for up to CeremonyTimeout.
		WriteTimeout: cfg.CeremonyTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	log.Info("passkeywallet started",
		"listen_addr", cfg.ListenAddr,
		"providers", paymasters.Providers(),
		"wallet_sla", cfg.WalletSLA,
	)

	// 7. Wait for shutdown signal.
	<-ctx.Done()
	log.Info("shutting down")

	// 8. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStore opens the configured credential store. The returned closer
// releases its connections.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (driven.CredentialStore, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory credential store, credentials are lost on restart")
		return memory.NewCredentialRepo(), closerFunc(func() error { return nil }), nil

	case config.StorePostgres:
		sealer, err := vault.NewSealer(cfg.SecretKey)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("postgres store opened")
		return postgres.NewCredentialRepo(db, sealer), db, nil

	default:
		sealer, err := vault.NewSealer(cfg.SecretKey)
		if err != nil {
			return nil, nil, err
		}
		// Dual reader/writer with WAL mode.
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("sqlite store opened", "path", cfg.DBPath)
		return sqliteadapter.NewCredentialRepo(db, sealer), db, nil
	}
}

func newCeremonyProvider(cfg *config.Config, log *slog.Logger) driven.CeremonyProvider {
	if cfg.CeremonyProvider == config.CeremonyRelay {
		return ceremony.NewRelayClient(cfg.CeremonyRelayURL, &http.Client{Timeout: cfg.CeremonyTimeout + 5*time.Second})
	}
	log.Warn("using mock ceremony provider, any caller can act for any identity; set PASSKEYWALLET_CEREMONY_PROVIDER=relay in production")
	return ceremony.NewMockAuthenticator("https://" + cfg.RPID)
}

// newPaymasters builds adapters in preference order, skipping providers
// without an endpoint.
func newPaymasters(cfg *config.Config, log *slog.Logger) ([]driven.PaymasterProvider, error) {
	providers := make([]driven.PaymasterProvider, 0, len(cfg.PaymasterOrder))
	for _, name := range cfg.PaymasterOrder {
		if !cfg.HasProvider(name) {
			log.Info("paymaster provider not configured, skipping", "provider", name)
			continue
		}

		opts := paymaster.Options{
			URL:        cfg.Providers[name].URL,
			APIKey:     cfg.Providers[name].APIKey,
			EntryPoint: cfg.EntryPoint,
			ChainID:    cfg.ChainID,
			Timeout:    cfg.ProviderTimeout,
			MaxRetries: cfg.ProviderMaxRetries,
			Logger:     log.With("provider", name),
		}

		var (
			p   driven.PaymasterProvider
			err error
		)
		switch name {
		case config.ProviderBiconomy:
			p, err = paymaster.NewBiconomy(opts)
		case config.ProviderPimlico:
			p, err = paymaster.NewPimlico(opts)
		default:
			err = fmt.Errorf("unknown paymaster provider %q", name)
		}
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}
