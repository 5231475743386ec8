package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docs-analyst/internal/bootstrap"
	"github.com/kirillkom/docs-analyst/internal/config"
	"github.com/kirillkom/docs-analyst/internal/observability/logging"
)

const serviceName = "cli"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "analyst",
	Short: "Ask grounded questions across a local document corpus",
	Long: `analyst ingests PDFs, spreadsheets, HTML and text files into a local index
and answers questions about them with page-level citations. Questions are
routed to question answering, comparison, timeline, aggregation or
summarization depending on what they ask for.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("ANALYST_CONFIG_FILE"), "YAML config file; environment variables take precedence")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// openApp wires the local stack and routes logs to stderr.
func openApp() (*bootstrap.App, error) {
	cfg, err := config.LoadWithFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	slog.SetDefault(logging.NewLogger(os.Stderr, serviceName, cfg.LogLevel))

	return bootstrap.NewLocal(cfg)
}

// commandContext bounds a command by the configured query timeout.
func commandContext(cmd *cobra.Command, app *bootstrap.App) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if app.Config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, app.Config.QueryTimeout)
	}
	return context.WithCancel(ctx)
}
