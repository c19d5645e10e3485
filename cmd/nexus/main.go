// Command nexus is the CLI front end for the embeddable graph database:
// open a data directory, run ad-hoc Cypher-subset queries against it,
// and perform administrative maintenance, grounded on the teacher's
// cmd/bd root-command wiring (signal-aware context, cobra command
// groups, viper-backed config) scaled down to the much smaller command
// surface this engine actually needs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexusdb/nexus/internal/config"
)

var (
	dataDir    string
	jsonOutput bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "nexus - embeddable property-graph database",
	Long:  `nexus is a CLI for the Nexus embeddable property-graph database: open a data directory, run Cypher-subset queries, and administer the engine.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		if !cmd.Flags().Changed("data-dir") {
			if cfg, err := config.Load("."); err == nil && cfg.DataDir != "" {
				dataDir = cfg.DataDir
			}
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./nexus-data", "database data directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(adminCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if rootCancel != nil {
			rootCancel()
		}
		os.Exit(1)
	}
	if rootCancel != nil {
		rootCancel()
	}
}
