package tui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

const defaultPollInterval = 500 * time.Millisecond

// pollInterval returns cfg.Interval as a Duration, or the default if unset.
func pollInterval(cfg Config) time.Duration {
	if cfg.Interval <= 0 {
		return defaultPollInterval
	}
	return time.Duration(cfg.Interval) * time.Millisecond
}

// Renderer displays a live status view until Stop is called.
type Renderer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Config configures a Renderer.
type Config struct {
	Output     io.Writer
	Source     Source
	Interval   int // poll interval in milliseconds; 0 uses the default
	ForcePlain bool
	NoColor    bool
}

// NewRenderer returns a TUI renderer for interactive terminals and a
// plain-text renderer for pipes, CI, or when ForcePlain is set.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewTUIRenderer(cfg)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether a recognized CI environment variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
