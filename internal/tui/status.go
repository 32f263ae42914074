// Package tui renders a live status view for "rifflux status --watch": a
// Renderer interface with a bubbletea-backed implementation for TTY
// output and a plain-text fallback for pipes and CI, chosen by
// IsTTY/DetectCI at construction time.
package tui

// Snapshot is one point-in-time read of the engine's observable state, the
// only data the tui package depends on; callers adapt their own engine
// type into this shape so tui never imports internal/engine directly.
type Snapshot struct {
	WatcherState string `json:"watcher_state"`

	QueuedJobs    int `json:"queued_jobs"`
	RunningJobs   int `json:"running_jobs"`
	RetryingJobs  int `json:"retrying_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	FailedJobs    int `json:"failed_jobs"`

	FileCount        int    `json:"file_count"`
	ChunkCount       int    `json:"chunk_count"`
	EmbeddingModel   string `json:"embedding_model"`
	EmbeddingBackend string `json:"embedding_backend"`
}

// Source supplies fresh Snapshots to the renderer on each tick.
type Source interface {
	Snapshot() Snapshot
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() Snapshot

func (f SourceFunc) Snapshot() Snapshot { return f() }
