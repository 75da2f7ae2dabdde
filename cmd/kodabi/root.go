package kodabi

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/soundprediction/kodabi-gateway/pkg/backend"
	"github.com/soundprediction/kodabi-gateway/pkg/config"
	"github.com/soundprediction/kodabi-gateway/pkg/dispatch"
	"github.com/soundprediction/kodabi-gateway/pkg/logger"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/telemetry"
	"github.com/soundprediction/kodabi-gateway/pkg/tool"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "kodabi",
	Short: "Gateway to named RAG backends",
	Long: `Kodabi forwards queries addressed to a named RAG backend to the address
listed in the service registry and returns the backend's answer.

The same pipeline is reachable over HTTP (POST /central/query) and as an
MCP tool (POST /mcp/info, the /mcp endpoint, or "kodabi mcp" over stdio).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration; overrides may adjust it
// before validation.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger writing to w. When telemetry.db is set,
// error records are also written to DuckDB.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	log, closer, err := logger.New(cfg.Log, w)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if cfg.Telemetry.DB == "" {
		return log, closer, nil
	}

	sink, err := telemetry.Open(cfg.Telemetry.DB, cfg.Telemetry.Buffer)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	log = slog.New(telemetry.NewDuckDBHandler(log.Handler(), sink))
	return log, closers{sink, closer}, nil
}

// closers closes every element in order and reports all failures.
type closers []io.Closer

func (cs closers) Close() error {
	var result *multierror.Error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// pipeline holds the query components shared by the server and MCP commands.
type pipeline struct {
	client     *backend.Client
	dispatcher *dispatch.Dispatcher
	tool       *tool.Service
}

func newPipeline(cfg *config.Config, log *slog.Logger) *pipeline {
	client := backend.NewClient(backend.Config{
		Timeout: cfg.Client.Timeout,
		Breaker: backend.BreakerConfig{
			Enabled:     cfg.Client.Breaker.Enabled,
			Failures:    cfg.Client.Breaker.Failures,
			OpenTimeout: cfg.Client.Breaker.OpenTimeout,
		},
	}, log)
	dispatcher := dispatch.New(client, log)
	toolEntry := registry.BackendEntry{
		Name: cfg.MCP.RagName,
		Host: cfg.MCP.RagHost,
		Port: cfg.MCP.RagPort,
	}

	return &pipeline{
		client:     client,
		dispatcher: dispatcher,
		tool:       tool.NewService(dispatcher, toolEntry, log),
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close: %v\n", err)
	}
}
