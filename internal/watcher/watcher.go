// Package watcher implements a debounced, crash-resilient file watcher:
// fsnotify events are coalesced per path over a debounce window, then
// forwarded as path batches to a caller-supplied reindex callback.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rifflux/rifflux/internal/scan"
)

// State is the watcher's observable lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// maxConsecutiveCrashes is how many times the watcher thread may restart
// after an error before giving up permanently.
const maxConsecutiveCrashes = 5

// BatchFunc is invoked with the set of paths in one coalesced batch.
type BatchFunc func(paths []string)

// CoalesceCheck reports whether a background job is already queued or
// running for the given path set; if true, the batch is dropped instead
// of triggering a new job.
type CoalesceCheck func(paths []string) bool

// Watcher monitors a set of root paths for changes to files matching the
// configured include/exclude globs, debounces them, and invokes onBatch
// for every surviving batch.
type Watcher struct {
	roots          []string
	includeGlobs   []string
	excludeGlobs   []string
	debounceWindow time.Duration
	onBatch        BatchFunc
	shouldCoalesce CoalesceCheck

	mu         sync.Mutex
	state      State
	crashCount int
	fsWatcher  *fsnotify.Watcher
	debouncer  *Debouncer
	stopCh     chan struct{}
	runDone    chan struct{}
}

// Options configures a Watcher.
type Options struct {
	Roots          []string
	IncludeGlobs   []string
	ExcludeGlobs   []string
	DebounceWindow time.Duration
	OnBatch        BatchFunc
	ShouldCoalesce CoalesceCheck
}

// New constructs a Watcher in the idle state. It does not begin watching
// until a caller invokes Start; the engine does so from Serve, at serve
// startup rather than on the first query.
func New(opts Options) *Watcher {
	window := opts.DebounceWindow
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Watcher{
		roots:          opts.Roots,
		includeGlobs:   opts.IncludeGlobs,
		excludeGlobs:   opts.ExcludeGlobs,
		debounceWindow: window,
		onBatch:        opts.OnBatch,
		shouldCoalesce: opts.ShouldCoalesce,
		state:          StateIdle,
	}
}

// State returns the watcher's current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start begins watching if not already running or permanently stopped.
// Idempotent: calling it while already running is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.state == StateRunning {
		w.mu.Unlock()
		return nil
	}
	if w.state == StateStopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher: stopped after %d consecutive crashes", maxConsecutiveCrashes)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	for _, root := range w.roots {
		if err := fsw.Add(root); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return fmt.Errorf("watcher: watch %s: %w", root, err)
		}
	}

	w.fsWatcher = fsw
	w.debouncer = NewDebouncer(w.debounceWindow)
	w.stopCh = make(chan struct{})
	w.runDone = make(chan struct{})
	w.state = StateRunning
	w.mu.Unlock()

	go w.forwardBatches()
	go w.run()
	return nil
}

// run is the crash-resilient watch loop: on a watcher-thread error it
// restarts the fsnotify watcher with exponential backoff, giving up and
// transitioning to StateStopped after maxConsecutiveCrashes in a row.
func (w *Watcher) run() {
	defer close(w.runDone)
	crashes := 0
	for {
		err := w.watchOnce()
		if err == nil {
			return
		}

		w.mu.Lock()
		w.crashCount++
		crashes = w.crashCount
		stopRequested := w.state != StateRunning
		w.mu.Unlock()

		if stopRequested {
			return
		}
		if crashes >= maxConsecutiveCrashes {
			w.mu.Lock()
			w.state = StateStopped
			w.mu.Unlock()
			return
		}

		backoff := time.Duration(1<<uint(crashes-1)) * time.Second
		select {
		case <-time.After(backoff):
		case <-w.stopCh:
			return
		}

		for {
			if restartErr := w.restartFsWatcher(); restartErr == nil {
				break
			}
			w.mu.Lock()
			w.crashCount++
			crashes = w.crashCount
			stopRequested = w.state != StateRunning
			w.mu.Unlock()
			if stopRequested {
				return
			}
			if crashes >= maxConsecutiveCrashes {
				w.mu.Lock()
				w.state = StateStopped
				w.mu.Unlock()
				return
			}
			select {
			case <-time.After(time.Duration(1<<uint(crashes-1)) * time.Second):
			case <-w.stopCh:
				return
			}
		}
	}
}

func (w *Watcher) restartFsWatcher() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := fsw.Add(root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.mu.Lock()
	w.fsWatcher = fsw
	w.mu.Unlock()
	return nil
}

// watchOnce drains one generation of the fsnotify watcher until it either
// errors out (triggering a restart in run) or the watcher is stopped.
func (w *Watcher) watchOnce() error {
	w.mu.Lock()
	fsw := w.fsWatcher
	stopCh := w.stopCh
	w.mu.Unlock()

	for {
		select {
		case <-stopCh:
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel := filepath.ToSlash(ev.Name)

	if !w.matchesIncludeExclude(rel) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.mu.Lock()
	d := w.debouncer
	w.mu.Unlock()
	if d == nil {
		return
	}
	d.Add(Event{Path: ev.Name, Operation: op, Timestamp: time.Now()})
}

func (w *Watcher) matchesIncludeExclude(path string) bool {
	base := filepath.Base(path)
	for _, pat := range w.excludeGlobs {
		if scan.MatchGlob(pat, path) || scan.MatchGlob(pat, base) {
			return false
		}
	}
	if len(w.includeGlobs) == 0 {
		return true
	}
	for _, pat := range w.includeGlobs {
		if scan.MatchGlob(pat, path) || scan.MatchGlob(pat, base) {
			return true
		}
	}
	return false
}

// forwardBatches reads coalesced batches off the debouncer and invokes
// onBatch, unless shouldCoalesce reports a matching job is already
// queued or running for that path set.
func (w *Watcher) forwardBatches() {
	w.mu.Lock()
	d := w.debouncer
	w.mu.Unlock()
	if d == nil {
		return
	}

	for events := range d.Output() {
		if len(events) == 0 {
			continue
		}
		paths := make([]string, 0, len(events))
		for _, e := range events {
			paths = append(paths, e.Path)
		}
		if w.shouldCoalesce != nil && w.shouldCoalesce(paths) {
			continue
		}
		if w.onBatch != nil {
			w.onBatch(paths)
		}
	}
}

// Stop stops the watcher and releases its fsnotify subscription. Safe to
// call multiple times; a no-op if never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return nil
	}
	w.state = StateIdle
	close(w.stopCh)
	fsw := w.fsWatcher
	d := w.debouncer
	runDone := w.runDone
	w.mu.Unlock()

	if fsw != nil {
		_ = fsw.Close()
	}
	<-runDone
	if d != nil {
		d.Stop()
	}
	return nil
}
