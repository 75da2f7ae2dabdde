package kodabi

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/soundprediction/kodabi-gateway/pkg/backend"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/spf13/cobra"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the service registry",
}

var registryCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Load and validate a service registry document",
	Long: `Load the service registry document, report empty or shadowed entries,
and list the backends in load order. Without a path the configured
registry.path is used. With --probe each backend's /health endpoint is called.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := cfg.Registry.Path
		if len(args) == 1 {
			path = args[0]
		}

		var client *backend.Client
		if registryProbe {
			log, logCloser, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeQuietly(logCloser)
			client = backend.NewClient(backend.Config{Timeout: registryProbeTimeout}, log)
		}
		return checkRegistry(cmd.Context(), cmd.OutOrStdout(), path, client)
	},
}

var (
	registryProbe        bool
	registryProbeTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryCheckCmd)

	registryCheckCmd.Flags().BoolVar(&registryProbe, "probe", false, "Call each backend's health endpoint")
	registryCheckCmd.Flags().DurationVar(&registryProbeTimeout, "probe-timeout", 5*time.Second, "Timeout per health probe")
}

// checkRegistry prints the entries of the registry at path. A nil prober skips
// health checks. Load and validation failures are returned.
func checkRegistry(ctx context.Context, out io.Writer, path string, prober *backend.Client) error {
	reg, err := registry.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %d service(s)\n", path, reg.Len())
	unhealthy := 0
	for _, entry := range reg.Entries() {
		if prober == nil {
			fmt.Fprintf(out, "  %s\n", entry)
			continue
		}
		if err := prober.Health(ctx, entry); err != nil {
			unhealthy++
			fmt.Fprintf(out, "  %s  DOWN  %v\n", entry, err)
			continue
		}
		fmt.Fprintf(out, "  %s  UP\n", entry)
	}

	if err := reg.Validate(); err != nil {
		return err
	}
	if unhealthy > 0 {
		return fmt.Errorf("%d of %d service(s) failed the health probe", unhealthy, reg.Len())
	}
	return nil
}
