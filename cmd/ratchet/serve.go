package main

import (
	"github.com/spf13/cobra"
)

// newServeCommand builds the daemon command: the full pipeline (job queue,
// scheduler, registry sync/watch) plus the HTTP API exposing the MCP SSE
// transport and /metrics, grounded on
// infrastructure/gin/server.go's build-then-RunWithGracefulShutdown shape.
func newServeCommand() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job queue, scheduler and HTTP API (MCP over SSE, /metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.Start(ctx); err != nil {
				return err
			}
			defer a.Stop()

			return a.RunHTTP(ctx, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "override the configured HTTP listen host")
	cmd.Flags().IntVar(&port, "port", 0, "override the configured HTTP listen port")
	return cmd
}
