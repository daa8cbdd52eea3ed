package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Inspect fleet connectivity",
}

var topologyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current topology snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := apiClient.GetTopology()
		if err != nil {
			return fmt.Errorf("failed to get topology: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(topo))
		return nil
	},
}

var partitionsOpenOnly bool

var topologyPartitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List detected network partitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		parts, err := apiClient.ListPartitions(partitionsOpenOnly)
		if err != nil {
			return fmt.Errorf("failed to list partitions: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(parts))
		return nil
	},
}

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent fleet events",
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := apiClient.ListEvents(eventsLimit)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), formatter.Format(events))
		return nil
	},
}

func init() {
	topologyPartitionsCmd.Flags().BoolVar(&partitionsOpenOnly, "open", false, "show only unhealed partitions")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum number of events to show")
	topologyCmd.AddCommand(topologyShowCmd)
	topologyCmd.AddCommand(topologyPartitionsCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(eventsCmd)
}
