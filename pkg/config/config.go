package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Registry configuration
	Registry RegistryConfig `mapstructure:"registry"`

	// Outbound client configuration
	Client ClientConfig `mapstructure:"client"`

	// MCP tool configuration
	MCP MCPConfig `mapstructure:"mcp"`

	// Error telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	File   string `mapstructure:"file"`   // optional rotating log file
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RegistryConfig holds service registry configuration
type RegistryConfig struct {
	Path   string `mapstructure:"path"`
	Reload string `mapstructure:"reload"` // startup or request
	Watch  bool   `mapstructure:"watch"`
}

// ClientConfig holds outbound call configuration
type ClientConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Failures    uint32        `mapstructure:"failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// MCPConfig holds the backend the MCP tool is bound to
type MCPConfig struct {
	RagName string `mapstructure:"rag_name"`
	RagHost string `mapstructure:"rag_host"`
	RagPort string `mapstructure:"rag_port"`
}

// TelemetryConfig holds the optional DuckDB error log
type TelemetryConfig struct {
	DB     string `mapstructure:"db"` // empty disables telemetry
	Buffer int    `mapstructure:"buffer"`
}

// envBindings maps configuration keys to their environment variables.
var envBindings = map[string]string{
	"server.host":                 "KODABI_BASE_IP",
	"server.port":                 "KODABI_BASE_PORT",
	"server.mode":                 "KODABI_SERVER_MODE",
	"registry.path":               "KODABI_RAG_SERVICES_CONFIG",
	"registry.reload":             "KODABI_REGISTRY_RELOAD",
	"registry.watch":              "KODABI_REGISTRY_WATCH",
	"client.timeout":              "KODABI_CLIENT_TIMEOUT",
	"client.breaker.enabled":      "KODABI_BREAKER_ENABLED",
	"client.breaker.failures":     "KODABI_BREAKER_FAILURES",
	"client.breaker.open_timeout": "KODABI_BREAKER_OPEN_TIMEOUT",
	"mcp.rag_name":                "KODABI_MCP_RAG_NAME",
	"mcp.rag_host":                "KODABI_MCP_RAG_HOST",
	"mcp.rag_port":                "KODABI_MCP_RAG_PORT",
	"log.level":                   "KODABI_LOG_LEVEL",
	"log.format":                  "KODABI_LOG_FORMAT",
	"log.file":                    "KODABI_LOG_FILE",
	"telemetry.db":                "KODABI_TELEMETRY_DB",
	"telemetry.buffer":            "KODABI_TELEMETRY_BUFFER",
}

// Load loads configuration from an optional .env file, an optional config
// file and environment variables, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return config, nil
}

// loadDotEnv exports variables from path without overriding the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9699)
	v.SetDefault("server.mode", "release")

	// Registry defaults
	v.SetDefault("registry.path", "rag_config.json")
	v.SetDefault("registry.reload", "startup")
	v.SetDefault("registry.watch", false)

	// Client defaults
	v.SetDefault("client.timeout", "0s")
	v.SetDefault("client.breaker.enabled", false)
	v.SetDefault("client.breaker.failures", 5)
	v.SetDefault("client.breaker.open_timeout", "30s")

	// MCP defaults
	v.SetDefault("mcp.rag_name", "software engineering")
	v.SetDefault("mcp.rag_host", "host.docker.internal")
	v.SetDefault("mcp.rag_port", "9621")

	// Telemetry defaults
	v.SetDefault("telemetry.db", "")
	v.SetDefault("telemetry.buffer", 256)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid server mode: %q", c.Server.Mode)
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("registry path is required")
	}
	switch c.Registry.Reload {
	case "startup", "request":
	default:
		return fmt.Errorf("invalid registry reload mode: %q", c.Registry.Reload)
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("invalid client timeout: %s", c.Client.Timeout)
	}
	if c.Client.Breaker.Enabled && c.Client.Breaker.Failures == 0 {
		return fmt.Errorf("breaker failures must be positive")
	}
	if c.Telemetry.Buffer < 0 {
		return fmt.Errorf("invalid telemetry buffer: %d", c.Telemetry.Buffer)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}
	return nil
}
