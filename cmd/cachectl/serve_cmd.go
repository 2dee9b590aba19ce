// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sl-cache/stagelinq-cache/internal/cache/fetcher"
	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
	"github.com/sl-cache/stagelinq-cache/internal/cache/workers"
	"github.com/sl-cache/stagelinq-cache/internal/config"
	"github.com/sl-cache/stagelinq-cache/internal/log"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background fetch worker pool until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.WithComponent("cachectl.serve")

			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return err
			}

			db, err := storage.Open(cfg.Cache.DBPath(), cfg.Cache.StorageConfig())
			if err != nil {
				return err
			}
			defer db.Close()
			store := storage.New(db)
			if _, err := store.CleanupStalePending(); err != nil {
				return err
			}

			limiter := cfg.RateLimiter.RatelimitManager()
			f := fetcher.New(store, limiter)
			mgr := workers.NewManager(store, f, cfg.WorkerPool.WorkersConfig())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().Int("workers", cfg.WorkerPool.NumWorkers).Str("db", cfg.Cache.DBPath()).Msg("starting worker pool")
			return mgr.Run(ctx)
		},
	}
}
