package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage resource allocations",
	Long:  "Allocate, inspect, migrate, and release resource allocations.",
}

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked asset states",
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := apiClient.ListAssets()
		if err != nil {
			return fmt.Errorf("failed to list assets: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(states))
		return nil
	},
}

var assetAllocateType string

var assetAllocateCmd = &cobra.Command{
	Use:   "allocate <asset-id>",
	Short: "Allocate an asset on the best-scoring node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision, err := apiClient.AllocateAsset(args[0], model.ResourceType(assetAllocateType))
		if err != nil {
			return fmt.Errorf("failed to allocate asset: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(decision))
		return nil
	},
}

var assetMigrateCmd = &cobra.Command{
	Use:   "migrate <asset-id> <target-node-key>",
	Short: "Migrate an asset to another node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := apiClient.MigrateAsset(args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to migrate asset: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(st))
		return nil
	},
}

var assetReleaseCmd = &cobra.Command{
	Use:   "release <asset-id>",
	Short: "Release an allocated asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.ReleaseAsset(args[0]); err != nil {
			return fmt.Errorf("failed to release asset: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Asset %q released.\n", args[0])
		return nil
	},
}

func init() {
	assetAllocateCmd.Flags().StringVar(&assetAllocateType, "type", "cpu", "resource type: cpu, memory, gpu, storage, bandwidth")
	assetCmd.AddCommand(assetListCmd)
	assetCmd.AddCommand(assetAllocateCmd)
	assetCmd.AddCommand(assetMigrateCmd)
	assetCmd.AddCommand(assetReleaseCmd)
	rootCmd.AddCommand(assetCmd)
}
