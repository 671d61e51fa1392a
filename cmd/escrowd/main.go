package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"splitescrow/config"
	"splitescrow/core"
	"splitescrow/indexer"
	"splitescrow/observability/logging"
	telemetry "splitescrow/observability/otel"
	"splitescrow/rpc"
	"splitescrow/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configFile := flag.String("config", "./escrow.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions("escrowd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addrs := core.PredictAddresses(cfg.DeployerAddress(), cfg.DeployerNonce)
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		Deployer:    cfg.DeployerAddress().Hex(),
		Modules: map[string]string{
			"ledger":     addrs.Ledger.Hex(),
			"claim":      addrs.Claim.Hex(),
			"dispute":    addrs.Dispute.Hex(),
			"arbitrator": addrs.Arbitrator.Hex(),
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := rpc.NewHub(logger)
	defer hub.Close()
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithSink(hub),
		core.WithMetrics(cfg.Telemetry.Metrics),
	}

	var history rpc.History
	if cfg.Indexer.Enabled {
		idx, err := indexer.Open(cfg.Indexer.DSN, logger)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer func() {
			if err := idx.Close(); err != nil {
				logger.Warn("indexer close failed", slog.String("error", err.Error()))
			}
		}()
		opts = append(opts, core.WithSink(idx))
		history = idx
	}

	proc := core.NewProcessor(db, cfg.DeployerAddress(), cfg.DeployerNonce, opts...)
	if genesis, ok, err := cfg.CoreGenesis(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	} else if ok {
		applied, err := proc.InitGenesis(ctx, genesis)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		if applied {
			logger.Info("genesis applied", slog.String("governance", genesis.Governance.Hex()))
		}
	}
	logger.Info("escrow modules ready",
		slog.String("ledger", addrs.Ledger.Hex()),
		slog.String("claim", addrs.Claim.Hex()),
		slog.String("dispute", addrs.Dispute.Hex()),
		slog.String("arbitrator", addrs.Arbitrator.Hex()))

	server, err := rpc.NewServer(proc, rpc.Config{
		Auth: rpc.AuthConfig{
			Enabled:           cfg.Auth.Enabled,
			Secret:            cfg.Auth.Secret(),
			Issuer:            cfg.Auth.Issuer,
			AllowCallerHeader: cfg.Auth.AllowCallerHeader,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Metrics: cfg.Telemetry.Metrics,
	}, logger, hub, history)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("escrowd listening", slog.String("addr", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.Close()
	return httpServer.Shutdown(shutdownCtx)
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.DBBackend {
	case config.BackendMemDB:
		return storage.NewMemDB(), nil
	default:
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	}
}
