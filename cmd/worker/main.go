// Package main provides the entry point for the resolution worker. The
// worker sweeps for connections and promotions whose resolution did not
// complete on the request path.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/shutdown"
	"github.com/narvanalabs/playdate/internal/store/postgres"
	"github.com/narvanalabs/playdate/pkg/config"
	"github.com/narvanalabs/playdate/pkg/logger"
	"github.com/narvanalabs/playdate/pkg/telemetry"
)

// Version is set at build time using ldflags.
var Version = "dev"

func main() {
	log := logger.Default()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn("falling back to info logging", "error", err)
	}
	log = logger.New(level, cfg.Log.JSON).WithComponent("worker")
	slog.SetDefault(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	coordinator.Register(shutdown.NewFuncComponent("tracing", shutdownTracing))

	store, err := postgres.NewPostgresStore(postgres.FromConfig(cfg.Database), log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	coordinator.Register(shutdown.NewCloserComponent("store", store))

	engine := resolution.NewEngine(ledger.New(store, log.Logger), log.Logger)
	reconciler := resolution.NewReconciler(store, engine, resolution.ReconcilerConfig{
		Interval: cfg.Reconciler.Interval,
		Overlap:  cfg.Reconciler.Overlap,
	}, log.Logger)

	done := make(chan error, 1)
	runCtx, stopRun := context.WithCancel(ctx)
	go func() {
		err := reconciler.Run(runCtx)
		done <- err
		if err != nil && runCtx.Err() == nil {
			log.Error("reconciler exited", "error", err)
		}
		stopRun()
	}()
	coordinator.Register(shutdown.NewRunnerComponent("reconciler", reconciler, done))

	log.Info("worker started",
		"version", Version,
		"interval", cfg.Reconciler.Interval,
		"overlap", cfg.Reconciler.Overlap,
	)

	if err := coordinator.WaitForSignal(runCtx); err != nil {
		log.Error("worker shutdown incomplete", "error", err)
	}
	os.Exit(coordinator.ExitCode())
}
