package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rifflux/rifflux/internal/engine"
	"github.com/rifflux/rifflux/internal/tui"
	"github.com/rifflux/rifflux/internal/worker"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var (
		watch      bool
		jsonOutput bool
		noTUI      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index size, embedder identity, and watcher state",
		Long: `Report the current index's file and chunk counts, the configured
embedder's model and backend, and the file watcher's lifecycle state.

With --watch, renders a live-updating panel instead of a single snapshot:
a bubbletea TUI on an interactive terminal, or one line per poll interval
when piped, in CI, or under --no-tui.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := interruptContext(cmd.Context())
			defer stop()

			eng, err := openEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer closeEngine(eng)

			if !watch {
				snap, err := snapshotEngine(ctx, eng)
				if err != nil {
					return fmt.Errorf("collect status: %w", err)
				}
				if jsonOutput {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(snap)
				}
				return printSnapshot(cmd, snap)
			}

			source := tui.SourceFunc(func() tui.Snapshot {
				snap, err := snapshotEngine(ctx, eng)
				if err != nil {
					return tui.Snapshot{WatcherState: "error"}
				}
				return snap
			})
			renderer := tui.NewRenderer(tui.Config{
				Output:     cmd.OutOrStdout(),
				Source:     source,
				ForcePlain: noTUI,
			})
			if err := renderer.Start(ctx); err != nil {
				return fmt.Errorf("start status view: %w", err)
			}
			<-ctx.Done()
			return renderer.Stop()
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "render a live-updating status panel instead of a single snapshot")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the snapshot as JSON")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "with --watch, print one plain line per poll interval instead of the interactive panel")

	return cmd
}

// snapshotEngine adapts eng's current state into a tui.Snapshot, the one
// place internal/tui's Source boundary is bridged to internal/engine.
func snapshotEngine(ctx context.Context, eng *engine.Engine) (tui.Snapshot, error) {
	stats, err := eng.Store.Stats(ctx)
	if err != nil {
		return tui.Snapshot{}, err
	}

	snap := tui.Snapshot{
		WatcherState:     string(eng.WatcherState()),
		FileCount:        stats.FileCount,
		ChunkCount:       stats.ChunkCount,
		EmbeddingModel:   eng.Embedder.ModelName(),
		EmbeddingBackend: string(eng.Config.EmbeddingBackend),
	}
	for _, j := range eng.Queue.List() {
		switch j.Status {
		case worker.StatusQueued:
			snap.QueuedJobs++
		case worker.StatusRunning:
			snap.RunningJobs++
		case worker.StatusRetryWait:
			snap.RetryingJobs++
		case worker.StatusCompleted:
			snap.CompletedJobs++
		case worker.StatusFailed:
			snap.FailedJobs++
		}
	}
	return snap, nil
}

func printSnapshot(cmd *cobra.Command, snap tui.Snapshot) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "watcher: %s\n", snap.WatcherState)
	fmt.Fprintf(out, "queue: %d queued, %d running, %d retrying, %d completed, %d failed\n",
		snap.QueuedJobs, snap.RunningJobs, snap.RetryingJobs, snap.CompletedJobs, snap.FailedJobs)
	fmt.Fprintf(out, "index: %d files, %d chunks\n", snap.FileCount, snap.ChunkCount)
	fmt.Fprintf(out, "embedder: %s / %s\n", snap.EmbeddingBackend, snap.EmbeddingModel)
	return nil
}
