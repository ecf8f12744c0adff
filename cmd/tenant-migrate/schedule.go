package main

import (
	"os"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	scheduleCmd.Flags().String("tenant", "", "The id of the tenant to migrate.")
	scheduleCmd.Flags().String("at", "", "When to run, in RFC 3339. Defaults to the next configured default schedule time.")
	scheduleCmd.Flags().String("module", "", "The module to migrate. Defaults to the configured default modules.")
	scheduleCmd.Flags().String("migration", "", "The migration that must be applied by the run. Defaults to every pending migration.")
	scheduleCmd.Flags().String("created-by", os.Getenv("USER"), "Who requested the schedule.")
	scheduleCmd.MarkFlagRequired("tenant")

	cancelCmd.Flags().String("schedule", "", "The id of the scheduled migration to cancel.")
	cancelCmd.MarkFlagRequired("schedule")

	registerTableFlag(scheduledCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a tenant migration for later execution by a worker.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		tenantID, _ := command.Flags().GetString("tenant")
		at, _ := command.Flags().GetString("at")
		module, _ := command.Flags().GetString("module")
		migration, _ := command.Flags().GetString("migration")
		createdBy, _ := command.Flags().GetString("created-by")

		var scheduledTime time.Time
		if at != "" {
			parsed, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return errors.Wrap(err, "invalid --at")
			}
			scheduledTime = parsed
		}

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.db == nil || a.cfg.SchedulerBackend != "redis" {
			return errors.New("scheduling from the command line requires DATABASE_URL and the redis scheduler backend")
		}

		scheduled, err := a.svc.ScheduleMigration(command.Context(), orchestrator.ScheduleRequest{
			TenantID:      orchestrator.TenantID(tenantID),
			ScheduledTime: scheduledTime,
			Migration:     orchestrator.Named(migration),
			Module:        orchestrator.Named(module),
			CreatedBy:     createdBy,
		})
		if err != nil {
			return errors.Wrap(err, "failed to schedule migration")
		}
		return printJSON(command.OutOrStdout(), scheduled)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a pending scheduled migration.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		scheduleID, _ := command.Flags().GetString("schedule")

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.CancelScheduledMigration(command.Context(), scheduleID); err != nil {
			return errors.Wrapf(err, "failed to cancel scheduled migration %s", scheduleID)
		}

		a.logger.WithField("scheduleID", scheduleID).Info("scheduled migration cancelled")
		return nil
	},
}

var scheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List pending and running scheduled migrations.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		schedules, err := a.svc.GetScheduledMigrations(command.Context())
		if err != nil {
			return errors.Wrap(err, "failed to list scheduled migrations")
		}

		outputToTable, _ := command.Flags().GetBool("table")
		if outputToTable {
			printSchedules(command.OutOrStdout(), schedules)
			return nil
		}
		return printJSON(command.OutOrStdout(), schedules)
	},
}
