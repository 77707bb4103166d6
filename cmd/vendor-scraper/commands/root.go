package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/vendor-scraper/internal/config"
	"github.com/maltedev/vendor-scraper/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log *slog.Logger

	logLevel  *string
	logFormat *string
)

var rootCmd = &cobra.Command{
	Use:           "vendor-scraper",
	Short:         "vendor-scraper scrapes electronic component vendor product pages into a common record.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if *logLevel != "" {
			loaded.Logging.Level = *logLevel
		}
		if *logFormat != "" {
			loaded.Logging.Format = *logFormat
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		cfg = loaded
		log = logger.Init(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	logLevel = rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (default LOG_LEVEL).")
	logFormat = rootCmd.PersistentFlags().String("log-format", "", "Log format: json or text (default LOG_FORMAT).")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}
