// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Config controls how the logger is constructed.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// Output receives log records. Defaults to os.Stderr.
	Output io.Writer
	// Format forces "json" or "text". Empty means auto-detect from the
	// output's terminal-ness: a TTY gets text, anything else gets JSON.
	Format string
}

// Setup builds and installs the process-wide slog.Logger, returning it
// along with a cleanup function to call on shutdown.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	format := cfg.Format
	if format == "" {
		format = "json"
		if f, ok := output.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "text"
		}
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(output, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	cleanup := func() {}
	return logger, cleanup, nil
}

// parseLevel converts a string level to slog.Level, defaulting to Info.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
