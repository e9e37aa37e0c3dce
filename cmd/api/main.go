// Package main provides the entry point for the API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/narvanalabs/playdate/internal/api"
	"github.com/narvanalabs/playdate/internal/auth"
	"github.com/narvanalabs/playdate/internal/resolution"
	pgstore "github.com/narvanalabs/playdate/internal/store/postgres"
	"github.com/narvanalabs/playdate/pkg/config"
	"github.com/narvanalabs/playdate/pkg/logger"
	"github.com/narvanalabs/playdate/pkg/telemetry"
)

func main() {
	log := logger.New(slog.LevelInfo, true)

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn("falling back to info logging", "error", err)
	}
	log = logger.New(level, cfg.Log.JSON).WithComponent("api")
	slog.SetDefault(log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, api.Version)
	if err != nil {
		log.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("flushing traces failed", "error", err)
		}
	}()

	store, err := pgstore.NewPostgresStore(pgstore.FromConfig(cfg.Database), log.Logger)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		TokenExpiry: cfg.Auth.JWTExpiry,
		BcryptCost:  cfg.Auth.BcryptCost,
	}, log.Logger)

	services := api.NewServices(store, authService, resolution.ReconcilerConfig{
		Interval: cfg.Reconciler.Interval,
		Overlap:  cfg.Reconciler.Overlap,
	}, log.Logger)
	server := api.NewServer(cfg, store, services, authService, log.Logger)

	log.Info("starting API server",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"version", api.Version,
	)

	if err := server.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
