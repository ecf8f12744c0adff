package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	settingsSetCmd.Flags().String("file", "", "JSON file with the settings to change. Omitted fields keep their current value.")
	settingsSetCmd.MarkFlagRequired("file")

	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the stored migration settings.",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current migration settings.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		settings, err := a.svc.GetMigrationSettings(command.Context())
		if err != nil {
			return errors.Wrap(err, "failed to get migration settings")
		}
		return printJSON(command.OutOrStdout(), settings)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Merge a JSON document into the migration settings.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		path, _ := command.Flags().GetString("file")
		body, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to read settings file")
		}

		a, err := loadApp(command.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		settings, err := a.svc.GetMigrationSettings(command.Context())
		if err != nil {
			return errors.Wrap(err, "failed to get migration settings")
		}
		if err := json.Unmarshal(body, &settings); err != nil {
			return errors.Wrap(err, "failed to decode settings file")
		}

		updated, err := a.svc.UpdateMigrationSettings(command.Context(), settings)
		if err != nil {
			return errors.Wrap(err, "failed to update migration settings")
		}
		return printJSON(command.OutOrStdout(), updated)
	},
}
