package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrationCmd = &cobra.Command{
	Use:   "migration",
	Short: "Inspect and cancel asset migrations",
}

var migrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrations, err := apiClient.ListMigrations()
		if err != nil {
			return fmt.Errorf("failed to list migrations: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(migrations))
		return nil
	},
}

var migrationHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrations, err := apiClient.MigrationHistory()
		if err != nil {
			return fmt.Errorf("failed to list migration history: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(migrations))
		return nil
	},
}

var migrationCancelCmd = &cobra.Command{
	Use:   "cancel <asset-id>",
	Short: "Cancel the active migration for an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.CancelMigration(args[0]); err != nil {
			return fmt.Errorf("failed to cancel migration: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migration for asset %q cancelled.\n", args[0])
		return nil
	},
}

func init() {
	migrationCmd.AddCommand(migrationListCmd)
	migrationCmd.AddCommand(migrationHistoryCmd)
	migrationCmd.AddCommand(migrationCancelCmd)
	rootCmd.AddCommand(migrationCmd)
}
