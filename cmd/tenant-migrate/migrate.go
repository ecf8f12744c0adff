package main

import (
	"github.com/getpup/migration-orchestrator"
	svc "github.com/getpup/migration-orchestrator/pkg/orchestrator"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	applyCmd.Flags().String("tenant", "", "The id of the tenant to migrate.")
	applyCmd.Flags().String("module", "", "The module to migrate. Defaults to the configured default modules.")
	applyCmd.Flags().Bool("all", false, "Migrate every active tenant.")
	registerTableFlag(applyCmd)

	rollbackCmd.Flags().String("tenant", "", "The id of the tenant to roll back.")
	rollbackCmd.Flags().String("module", "", "The module the migration belongs to.")
	rollbackCmd.Flags().String("migration", "", "The migration to revert. It must be the module's latest applied migration.")
	rollbackCmd.MarkFlagRequired("tenant")
	rollbackCmd.MarkFlagRequired("module")
	rollbackCmd.MarkFlagRequired("migration")

	previewCmd.Flags().String("tenant", "", "The id of the tenant the migration would run against.")
	previewCmd.Flags().String("module", "", "The module the migration belongs to.")
	previewCmd.Flags().String("migration", "", "The migration to preview.")
	previewCmd.MarkFlagRequired("tenant")
	previewCmd.MarkFlagRequired("module")
	previewCmd.MarkFlagRequired("migration")

	registerTableFlag(pendingCmd)

	historyCmd.Flags().String("tenant", "", "The id of the tenant to query.")
	historyCmd.MarkFlagRequired("tenant")
	registerTableFlag(historyCmd)
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the orchestrator tables in the master database.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.db == nil {
			return errors.New("init-db requires DATABASE_URL")
		}
		if err := svc.RunMigrations(a.db); err != nil {
			return errors.Wrap(err, "failed to create orchestrator tables")
		}

		a.logger.Info("orchestrator tables created")
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply pending migrations to one tenant or to every tenant.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		tenantID, _ := command.Flags().GetString("tenant")
		module, _ := command.Flags().GetString("module")
		all, _ := command.Flags().GetBool("all")
		outputToTable, _ := command.Flags().GetBool("table")

		if all == (tenantID != "") {
			return errors.New("exactly one of --tenant or --all must be given")
		}
		if all && module != "" {
			return errors.New("--module cannot be combined with --all")
		}

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := command.OutOrStdout()

		if all {
			report, err := a.svc.ApplyToAllTenants(command.Context())
			if err != nil {
				return errors.Wrap(err, "failed to migrate tenants")
			}
			if outputToTable {
				printFleetReport(out, report)
			} else if err := printJSON(out, report); err != nil {
				return err
			}
			return report.Err()
		}

		result, err := a.svc.ApplyToTenant(command.Context(), orchestrator.TenantID(tenantID), orchestrator.Named(module))
		if err != nil {
			return errors.Wrapf(err, "failed to migrate tenant %s", tenantID)
		}
		if outputToTable {
			printApplyResult(out, result)
			return nil
		}
		return printJSON(out, result)
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the latest applied migration of a tenant module.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		tenantID, _ := command.Flags().GetString("tenant")
		module, _ := command.Flags().GetString("module")
		migration, _ := command.Flags().GetString("migration")

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.svc.RollbackMigration(command.Context(), orchestrator.TenantID(tenantID), migration, module)
		if err != nil {
			return errors.Wrapf(err, "failed to roll back %s/%s on tenant %s", module, migration, tenantID)
		}
		return printJSON(command.OutOrStdout(), result)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show a migration's script, affected tables and estimated duration.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		tenantID, _ := command.Flags().GetString("tenant")
		module, _ := command.Flags().GetString("module")
		migration, _ := command.Flags().GetString("migration")

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		preview, err := a.svc.GetMigrationScriptPreview(command.Context(), orchestrator.TenantID(tenantID), migration, module)
		if err != nil {
			return errors.Wrap(err, "failed to preview migration")
		}
		return printJSON(command.OutOrStdout(), preview)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending migrations of every active tenant.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		statuses, err := a.svc.GetPendingMigrations(command.Context())
		if err != nil {
			return errors.Wrap(err, "failed to list pending migrations")
		}

		outputToTable, _ := command.Flags().GetBool("table")
		if outputToTable {
			printPending(command.OutOrStdout(), statuses)
			return nil
		}
		return printJSON(command.OutOrStdout(), statuses)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a tenant's migration history, newest first.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		tenantID, _ := command.Flags().GetString("tenant")

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.svc.GetMigrationHistory(command.Context(), orchestrator.TenantID(tenantID))
		if err != nil {
			return errors.Wrap(err, "failed to get migration history")
		}

		outputToTable, _ := command.Flags().GetBool("table")
		if outputToTable {
			printHistory(command.OutOrStdout(), records)
			return nil
		}
		return printJSON(command.OutOrStdout(), records)
	},
}
