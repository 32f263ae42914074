// Package cmd implements the rifflux command-line surface: index, search,
// serve, and status subcommands wired to a single Engine per invocation.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rifflux/rifflux/internal/config"
	"github.com/rifflux/rifflux/internal/engine"
	"github.com/rifflux/rifflux/internal/logging"
)

// engineCloseTimeout bounds how long a command waits for the background
// worker to drain before Close cancels it outright.
const engineCloseTimeout = 5 * time.Second

// globalFlags holds the persistent flags every subcommand reads.
type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the rifflux command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "rifflux",
		Short:         "Local hybrid search over a markdown corpus",
		Long:          `rifflux indexes a directory of markdown files and serves lexical, semantic, and fused hybrid search over the result, either as a one-shot CLI or an MCP tool server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := logging.Setup(logging.Config{
				Level:  flags.logLevel,
				Output: cmd.ErrOrStderr(),
				Format: flags.logFormat,
			})
			return err
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to rifflux.yaml (defaults to none: built-in defaults + RIFFLUX_* env)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "override the configured database path")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format: text, json (default: auto-detect from stderr)")

	root.AddCommand(
		newIndexCmd(flags),
		newSearchCmd(flags),
		newServeCmd(flags),
		newStatusCmd(flags),
		newVersionCmd(),
	)

	return root
}

// Execute runs the root command, returning its terminal error if any.
func Execute() error {
	return NewRootCmd().Execute()
}

// interruptContext returns a context cancelled on SIGINT/SIGTERM, so a
// long-running reindex or serve loop unwinds cleanly on Ctrl+C.
func interruptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// openEngine loads configuration from flags and opens an Engine, applying
// the --db override on top of the loaded configuration.
func openEngine(ctx context.Context, flags *globalFlags) (*engine.Engine, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if flags.dbPath != "" {
		cfg.DBPath = flags.dbPath
	}

	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return eng, nil
}

// closeEngine releases eng's resources, logging (rather than failing the
// command on) a close error, since the command's own result has already
// been reported by the time cleanup runs.
func closeEngine(eng *engine.Engine) {
	if err := eng.Close(engineCloseTimeout); err != nil {
		slog.Error("engine close failed", slog.String("error", err.Error()))
	}
}
