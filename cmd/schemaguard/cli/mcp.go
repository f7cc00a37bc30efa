package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	fmcp "github.com/faucetdb/schemaguard/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes file validation,
reference schemas, snapshot history and drift detection as tools for AI agents.

In stdio mode the server speaks JSON-RPC over stdin/stdout, for clients that
launch it as a subprocess. In http mode it listens on the given port using the
Streamable HTTP transport.

The default transport comes from mcp.transport in the config file.`,
		Example: `  schemaguard mcp                            # stdio mode
  schemaguard mcp --transport http --port 3001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(cmd *cobra.Command, transport string, port int) error {
	ctx := context.Background()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if !e.cfg.MCP.Enabled && !cmd.Flags().Changed("transport") {
		return fmt.Errorf("MCP is disabled in the config file (mcp.enabled: false)")
	}
	if transport == "" {
		transport = e.cfg.MCP.Transport
	}

	e.connectAll(ctx)
	srv := fmcp.NewMCPServer(e.deps(), versionString())

	switch transport {
	case "", "stdio":
		return srv.ServeStdio()
	case "http":
		return srv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
