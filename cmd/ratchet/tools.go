package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michiel/ratchet-sub007/internal/mcp"
)

// newToolsCommand prints the MCP tool descriptors tools/list would return,
// without needing a database or any other backing store: Descriptors is a
// static catalogue over the registered tool names.
func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the MCP tools this server exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := mcp.NewToolRegistry(nil, nil, nil, nil)
			out, err := json.MarshalIndent(registry.Descriptors(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
