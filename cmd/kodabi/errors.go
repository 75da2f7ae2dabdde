package kodabi

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/soundprediction/kodabi-gateway/pkg/telemetry"
	"github.com/spf13/cobra"
)

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "List recent dispatch errors recorded in the telemetry database",
	Long: `List the most recent error records written to the DuckDB telemetry
database configured by telemetry.db (KODABI_TELEMETRY_DB).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Telemetry.DB == "" {
			return fmt.Errorf("telemetry.db is not configured")
		}

		reader, err := telemetry.OpenReader(cfg.Telemetry.DB)
		if err != nil {
			return err
		}
		defer closeQuietly(reader)

		return printErrors(cmd.Context(), cmd.OutOrStdout(), reader, errorsLimit)
	},
}

var errorsLimit int

func init() {
	rootCmd.AddCommand(errorsCmd)
	errorsCmd.Flags().IntVar(&errorsLimit, "limit", 20, "Maximum number of records to show")
}

func printErrors(ctx context.Context, out io.Writer, reader *telemetry.Reader, limit int) error {
	records, err := reader.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read telemetry: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSOURCE\tREQUEST\tRAG\tERROR")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.Timestamp.Local().Format(time.DateTime), rec.RequestSource, rec.RequestID, rec.RagName, rec.Error)
	}
	return tw.Flush()
}
