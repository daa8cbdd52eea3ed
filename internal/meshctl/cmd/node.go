package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage mesh nodes",
	Long:  "List, inspect, and remove nodes in the coordination fleet.",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known nodes in the fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := apiClient.ListNodes()
		if err != nil {
			return fmt.Errorf("failed to list nodes: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(nodes))
		return nil
	},
}

var nodeDescribeCmd = &cobra.Command{
	Use:   "describe <node-key>",
	Short: "Show detailed info for a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := apiClient.GetNode(args[0])
		if err != nil {
			return fmt.Errorf("failed to describe node: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(node))
		return nil
	},
}

var nodeRemoveReason string

var nodeRemoveCmd = &cobra.Command{
	Use:   "remove <node-key>",
	Short: "Remove a node from the fleet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.RemoveNode(args[0], nodeRemoveReason); err != nil {
			return fmt.Errorf("failed to remove node: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Node %q removed.\n", args[0])
		return nil
	},
}

var nodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fleet-wide counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := apiClient.FleetStatus()
		if err != nil {
			return fmt.Errorf("failed to get fleet status: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(m))
		return nil
	},
}

func init() {
	nodeRemoveCmd.Flags().StringVar(&nodeRemoveReason, "reason", "", "reason recorded in the departure event")
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeDescribeCmd)
	nodeCmd.AddCommand(nodeRemoveCmd)
	nodeCmd.AddCommand(nodeStatusCmd)
	rootCmd.AddCommand(nodeCmd)
}
