package kodabi

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundprediction/kodabi-gateway/pkg/config"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/server"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Kodabi HTTP gateway",
	Long: `Start the Kodabi HTTP gateway.

The server provides endpoints for:
- Querying a named RAG backend (POST /central/query)
- Calling the RAG query tool over HTTP (POST /mcp/info) or MCP (/mcp)
- Listing and probing registered backends (GET /central/services)
- Health checks (GET /health, GET /ready)

Configuration can be provided through a .env file, config files, environment
variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost     string
	serverPort     int
	serverMode     string
	serverRegistry string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "127.0.0.1", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 9699, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "release", "Server mode (debug, release, test)")

	// Registry flags
	serverCmd.Flags().StringVar(&serverRegistry, "registry", "rag_config.json", "Path to the service registry JSON document")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		overrideConfigWithFlags(cmd, cfg)
	})
	if err != nil {
		return err
	}

	log, logCloser, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeQuietly(logCloser)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, closeRegistry, err := registry.Open(ctx, registry.Options{
		Path:   cfg.Registry.Path,
		Reload: cfg.Registry.Reload,
		Watch:  cfg.Registry.Watch,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to open service registry: %w", err)
	}
	defer closeRegistry()

	p := newPipeline(cfg, log)

	srv := server.New(cfg, server.Deps{
		Registry:   provider,
		Dispatcher: p.dispatcher,
		Prober:     p.client,
		Tool:       p.tool,
		Version:    version,
		Logger:     log,
	})
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		log.Info("Received signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		log.Info("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}
	if cmd.Flags().Changed("registry") {
		cfg.Registry.Path = serverRegistry
	}
}
