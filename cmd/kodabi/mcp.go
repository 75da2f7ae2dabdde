package kodabi

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/soundprediction/kodabi-gateway/pkg/tool"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the RAG query tool over MCP stdio",
	Long: `Serve the Model Context Protocol (MCP) over stdin/stdout so MCP clients
can call the software engineering RAG query tool like a function.

The tool is bound to a single backend configured by mcp.rag_name,
mcp.rag_host and mcp.rag_port. Logs go to stderr.`,
	RunE: runMCPServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol
	log, logCloser, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeQuietly(logCloser)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPipeline(cfg, log)
	log.Info("MCP server started", "tool", tool.Name, "backend", p.tool.Backend().String())

	err = tool.NewServer(p.tool, version).Run(ctx, &mcp.StdioTransport{})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
