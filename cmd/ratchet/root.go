package main

import (
	"github.com/spf13/cobra"
)

// cfgFile is the shared --config flag every subcommand reads from during
// its own run, mirroring crawler/cmd/root.go's package-level cfgFile.
var cfgFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ratchet",
		Short: "Run user-supplied JavaScript tasks behind a job queue and MCP",
		Long: `Ratchet executes versioned JavaScript tasks through a job queue, cron
scheduler, result cache and output delivery layer, and exposes them to MCP
clients over stdio or SSE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (defaults to env vars and built-in defaults)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMCPServeCommand())
	root.AddCommand(newToolsCommand())
	root.AddCommand(newTestCommand())
	return root
}
