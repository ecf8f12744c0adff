package main

import (
	"context"
	"time"

	"github.com/getpup/migration-orchestrator/metrics"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run scheduled migrations as their triggers fire.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true
		ctx := command.Context()

		a, err := loadApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.MetricsAddr != "" {
			server := metrics.NewServer(a.cfg.MetricsAddr, func() error {
				readyCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return a.ready(readyCtx)
			})
			if err := server.Start(); err != nil {
				return errors.Wrap(err, "failed to start metrics server")
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.logger.WithError(err).Warn("failed to shut down metrics server")
				}
			}()
			a.logger.WithField("addr", a.cfg.MetricsAddr).Info("serving metrics")
		}

		a.logger.WithField("scheduler", a.cfg.SchedulerBackend).Info("worker started")

		err = a.svc.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "worker stopped")
		}

		a.logger.Info("worker stopped")
		return nil
	},
}
