// SPDX-License-Identifier: MIT

// Command lockd runs the seat lock engine: the HTTP API, the optional
// Prometheus endpoint and the expiry reaper, against the configured ledger,
// shadow store and event bus backends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/IsakPar/the-lml-sub003/internal/api"
	"github.com/IsakPar/the-lml-sub003/internal/bus"
	"github.com/IsakPar/the-lml-sub003/internal/config"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/coordinator"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/ledger"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/projector"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/reaper"
	"github.com/IsakPar/the-lml-sub003/internal/inventory/shadow"
	"github.com/IsakPar/the-lml-sub003/internal/log"
	"github.com/IsakPar/the-lml-sub003/internal/persistence/sqlite"
	"github.com/IsakPar/the-lml-sub003/internal/ratelimit"
	"github.com/IsakPar/the-lml-sub003/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lockd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Service: "lockd",
	})
	logger := log.WithComponent("lockd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("lockd exited with error")
	}
	logger.Info().Msg("lockd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "lockd",
		ServiceVersion: version,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	ldg, err := buildLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer func() { _ = ldg.Close() }()

	store, err := buildShadow(cfg)
	if err != nil {
		return fmt.Errorf("shadow store: %w", err)
	}
	defer func() { _ = store.Close() }()

	evBus, err := buildBus(cfg)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer func() { _ = evBus.Close() }()

	seq := bus.NewSequencer()
	budget := ratelimit.NewOwnerBudget(cfg.Rate.Burst, cfg.Rate.Window)
	coord := coordinator.New(ldg, store, evBus, seq, cfg.Limits, budget)

	sweeper := reaper.New(ldg, store, evBus, seq, reaper.Config{
		Interval: cfg.Reaper.Interval,
		Grace:    cfg.Reaper.Grace,
	})
	proj := projector.New(ldg, store, sweeper)

	server := api.NewServer(coord, proj, evBus, ldg, store, cfg)

	apiSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Listen).Msg("API server listening")
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsListen).Msg("metrics server listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API server shutdown failed")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("metrics server shutdown failed")
			}
		}
		return nil
	})

	return g.Wait()
}

func buildLedger(ctx context.Context, cfg *config.Config) (ledger.Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Ledger.Addr,
			Password: cfg.Ledger.Password,
			DB:       cfg.Ledger.DB,
			// The pool must absorb the configured burst without queueing.
			PoolSize: cfg.Rate.Burst * 4,
		})
		rl := ledger.NewRedis(client, ledger.RedisConfig{
			CommandTimeout:   cfg.Limits.LedgerCommandTimeout,
			OperationTimeout: cfg.Limits.LedgerOperationTimeout,
		})
		if err := rl.LoadScripts(ctx); err != nil {
			_ = rl.Close()
			return nil, err
		}
		return rl, nil
	case config.LedgerMemory:
		return ledger.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

func buildShadow(cfg *config.Config) (shadow.Store, error) {
	switch cfg.Shadow.Backend {
	case config.ShadowSQLite:
		if _, err := os.Stat(cfg.Shadow.Path); err == nil {
			issues, err := sqlite.VerifyIntegrity(cfg.Shadow.Path, "quick")
			if err != nil {
				return nil, fmt.Errorf("shadow integrity check: %w", err)
			}
			if len(issues) > 0 {
				return nil, fmt.Errorf("shadow store is corrupt: %s", issues[0])
			}
		}
		return shadow.NewSqliteStore(cfg.Shadow.Path)
	case config.ShadowMemory:
		return shadow.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown shadow backend %q", cfg.Shadow.Backend)
	}
}

func buildBus(cfg *config.Config) (bus.Bus, error) {
	switch cfg.Bus.Backend {
	case config.BusAMQP:
		return bus.NewAMQP(cfg.Bus.AMQPURL, cfg.Bus.QueueDepth)
	case config.BusMemory:
		return bus.NewMemoryBus(cfg.Bus.QueueDepth), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Bus.Backend)
	}
}
