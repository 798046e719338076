package cli

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/mcp"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose kbsynth to AI assistants over MCP",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run a Model Context Protocol server whose tools act as --principal.

The ingestion pipeline runs in the same process, so documents added with
ingest_document are clustered and get quick ideas while the server is up.

Stdio is the default transport. With --port the streamable HTTP transport is
served at /mcp, plus /healthz, bound to --host.

  kbsynth mcp serve
  kbsynth mcp serve --port 8080

Desktop assistant entry:
  {"mcpServers": {"kbsynth": {"command": "kbsynth", "args": ["mcp", "serve"]}}}`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpServeCmd.Flags().String("host", "127.0.0.1", "interface the HTTP transport binds to")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, _ := cmd.Flags().GetInt("port")    //nolint:errcheck // flag is registered above
	host, _ := cmd.Flags().GetString("host") //nolint:errcheck // flag is registered above
	if port < 0 || port > 65535 {
		return fmt.Errorf("--port %d out of range", port)
	}
	owner, err := requirePrincipal()
	if err != nil {
		return err
	}
	if pipelineService == nil {
		return errors.New("pipeline service not configured")
	}

	server, err := mcp.NewServer(&mcp.Ports{
		KnowledgeBases: kbService,
		Pipeline:       pipelineService,
		IdeaSeeds:      ideaSeedService,
		Synthesis:      synthesisService,
	}, mcp.Config{Principal: owner, SynthesisTimeout: synthesisTimeout})
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	if err := pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer pipelineService.Stop()

	if port == 0 {
		logger.Debug("mcp: serving %s over stdio", owner)
		return server.Run(ctx)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	cmd.Printf("MCP server listening on http://%s%s\n", addr, mcp.Endpoint)
	return server.RunHTTP(ctx, addr)
}
