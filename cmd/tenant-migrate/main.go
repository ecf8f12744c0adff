// Command tenant-migrate applies, schedules and inspects schema migrations
// across tenant databases.
//
// Configuration is read from the environment and an optional .env file:
//
//	DATABASE_URL          master database holding schedules, history and tenants
//	TENANT_DSN_TEMPLATE   tenant DSN, "{database}" is replaced per tenant
//	STATIC_TENANTS        comma-separated tenant ids when DATABASE_URL is empty
//	MIGRATIONS_DIR        one directory of golang-migrate files per module
//	REDIS_ADDR            enables the Redis lock, scheduler and notifications
//
// Usage:
//
//	tenant-migrate init-db
//	tenant-migrate apply --tenant acme --module billing
//	tenant-migrate apply --all
//	tenant-migrate schedule --tenant acme --at 2026-01-02T02:00:00Z
//	tenant-migrate worker
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tenant-migrate",
	Short: "Manage schema migrations across tenant databases.",
}

func init() {
	rootCmd.AddCommand(initDBCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(scheduledCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(workerCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
