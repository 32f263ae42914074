package tui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one status line per tick, for pipes and CI.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	source   Source
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPlainRenderer builds a PlainRenderer from cfg.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:      cfg.Output,
		source:   cfg.Source,
		interval: pollInterval(cfg),
	}
}

// Start begins printing status lines until ctx is cancelled or Stop is called.
func (r *PlainRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.printOnce()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.printOnce()
			}
		}
	}()
	return nil
}

func (r *PlainRenderer) printOnce() {
	if r.source == nil {
		return
	}
	s := r.source.Snapshot()
	_, _ = fmt.Fprintf(r.out, "watcher=%s queued=%d running=%d retrying=%d failed=%d files=%d chunks=%d embedder=%s/%s\n",
		s.WatcherState, s.QueuedJobs, s.RunningJobs, s.RetryingJobs, s.FailedJobs,
		s.FileCount, s.ChunkCount, s.EmbeddingBackend, s.EmbeddingModel)
}

// Stop cancels the printing loop and waits for it to exit.
func (r *PlainRenderer) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
