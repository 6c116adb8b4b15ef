package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/amaumene/stremarr/internal/api"
	"github.com/amaumene/stremarr/internal/controllers"
	"github.com/amaumene/stremarr/internal/metrics"
	"github.com/amaumene/stremarr/internal/scheduler"
	"github.com/amaumene/stremarr/internal/session"
	"github.com/amaumene/stremarr/internal/utils"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the recheck scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger.Info("Starting Stremarr")

			db, err := ctx.ensureDatabase()
			if err != nil {
				return err
			}

			shutdownTracing := utils.SetupTracing(cfg.TracingEnabled, logger)
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					logger.WithError(err).Warn("Failed to flush traces")
				}
			}()

			registry, m := metrics.NewRegistry()

			availabilityCtrl, err := buildAvailability(cfg, db, m, logger)
			if err != nil {
				return err
			}
			cleanupCtrl := controllers.NewCleanupController(db, logger)
			logger.Info("Controllers initialized")

			sched := scheduler.NewScheduler(availabilityCtrl, cleanupCtrl, db, cfg, m, logger)
			if err := sched.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer sched.Stop()

			sessions := session.NewStore(cfg.SessionTTL)
			server := api.NewServer(cfg, db, availabilityCtrl, sched, sessions, registry, logger)

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("Stremarr is running")
			if err := server.Start(runCtx); err != nil {
				return err
			}

			logger.Info("Stremarr stopped")
			return nil
		},
	}
}
