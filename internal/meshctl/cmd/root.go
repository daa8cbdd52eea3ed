// Package cmd implements the meshctl command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hypermesh-online/meshcoord/internal/meshctl/client"
	"github.com/hypermesh-online/meshcoord/internal/meshctl/config"
	"github.com/hypermesh-online/meshcoord/internal/meshctl/output"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	serverURL    string

	// Shared state set during PersistentPreRun
	cfg       *config.Config
	apiClient *client.Client
	formatter output.Formatter
)

// rootCmd is the base command for meshctl.
var rootCmd = &cobra.Command{
	Use:   "meshctl",
	Short: "HyperMesh coordination CLI for nodes, assets, migrations, and the resource market",
	Long: `Meshctl is the operator-facing CLI for the HyperMesh coordination
control plane. It inspects and manages the node fleet, resource
allocations, asset migrations, network topology, and the resource
sharing market.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		if outputFormat != "" {
			cfg.OutputFormat = outputFormat
		}

		apiClient = client.New(cfg.ServerURL, cfg.AuthToken)
		formatter = output.NewFormatter(cfg.OutputFormat)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.meshcoord/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json, yaml (default \"table\")")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "coordination API server URL")
}
