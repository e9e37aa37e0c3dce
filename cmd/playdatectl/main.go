// Package main provides playdatectl, the operator command line.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/narvanalabs/playdate/internal/cli"
	"github.com/narvanalabs/playdate/internal/store"
	"github.com/narvanalabs/playdate/internal/store/postgres"
	"github.com/narvanalabs/playdate/pkg/config"
	"github.com/narvanalabs/playdate/pkg/logger"
)

func main() {
	log := logger.New(slog.LevelWarn, false).WithComponent("playdatectl")

	open := func(ctx context.Context) (store.Store, error) {
		// Operator commands never issue tokens, so the JWT secret is optional.
		cfg, err := config.LoadWithDefaults()
		if err != nil {
			return nil, err
		}
		return postgres.NewPostgresStore(postgres.FromConfig(cfg.Database), log.Logger)
	}

	if err := cli.NewRootCommand(open, log.Logger).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
