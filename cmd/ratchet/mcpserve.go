package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michiel/ratchet-sub007/internal/errs"
)

// newMCPServeCommand builds the MCP-only entrypoint: the same pipeline as
// serve, exposed over whichever transport the operator picks. stdio mirrors
// mcp-north-cloud/main.go's stdin/stdout JSON-RPC loop; sse reuses the HTTP
// API's SSE transport directly.
func newMCPServeCommand() *cobra.Command {
	var transport string
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "mcp-serve",
		Short: "Run the MCP protocol layer over stdio or SSE",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch transport {
			case "stdio":
				return runMCPStdio(cmd.Context())
			case "sse", "":
				return runMCPSSE(cmd.Context(), host, port)
			default:
				return errs.Configuration("unknown --transport %q: must be stdio or sse", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "stdio or sse")
	cmd.Flags().StringVar(&host, "host", "", "override the configured HTTP listen host (sse transport only)")
	cmd.Flags().IntVar(&port, "port", 0, "override the configured HTTP listen port (sse transport only)")
	return cmd
}

func runMCPStdio(ctx context.Context) error {
	a, err := bootstrap(true)
	if err != nil {
		return err
	}

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(sigCtx); err != nil {
		return err
	}
	defer a.Stop()

	a.log.Info("starting MCP stdio transport")
	if err := a.stdio.Serve(sigCtx, os.Stdin, os.Stdout); err != nil && sigCtx.Err() == nil {
		return errs.Server(err, "mcp stdio transport")
	}
	return nil
}

func runMCPSSE(ctx context.Context, host string, port int) error {
	a, err := bootstrap(false)
	if err != nil {
		return err
	}

	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	return a.RunHTTP(ctx, host, port)
}
