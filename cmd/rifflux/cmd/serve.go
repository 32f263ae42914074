package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rifflux/rifflux/internal/mcpserver"
	"github.com/rifflux/rifflux/pkg/version"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server over stdio",
		Long: `Serve the search, reindex, get_chunk, get_file, and index_status tools
over the Model Context Protocol on stdio, for use as an MCP server entry
in an editor or agent configuration.

Diagnostic output is written to stderr only: stdio is reserved for the
JSON-RPC protocol stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			eng, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			if err := eng.Serve(ctx); err != nil {
				return fmt.Errorf("start file watcher: %w", err)
			}

			srv, err := mcpserver.NewServer(eng, "rifflux", version.Version)
			if err != nil {
				return fmt.Errorf("build mcp server: %w", err)
			}
			defer func() { _ = srv.Close() }()

			return srv.Serve(ctx)
		},
	}

	return cmd
}
