package tui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer renders a live status panel using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewTUIRenderer builds a TUIRenderer from cfg.
func NewTUIRenderer(cfg Config) *TUIRenderer {
	return &TUIRenderer{cfg: cfg}
}

// Start launches the bubbletea program in the background.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	styles := DefaultStyles()
	if r.cfg.NoColor || DetectNoColor() {
		styles = NoColorStyles()
	}
	model := newStatusModel(r.cfg.Source, styles, pollInterval(r.cfg))

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.program = tea.NewProgram(model, opts...)
	r.done = make(chan struct{})
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	go func() {
		<-ctx.Done()
		r.program.Quit()
	}()
	return nil
}

// Stop quits the program and waits (bounded) for it to exit.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	program := r.program
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if program != nil {
		program.Quit()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type tickMsg time.Time
type snapshotMsg Snapshot

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type statusModel struct {
	source   Source
	interval time.Duration
	styles   Styles
	spinner  spinner.Model
	snap     Snapshot
	quitting bool
}

func newStatusModel(source Source, styles Styles, interval time.Duration) *statusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))
	return &statusModel{source: source, styles: styles, interval: interval, spinner: s}
}

func (m *statusModel) fetchSnapshot() tea.Msg {
	if m.source == nil {
		return snapshotMsg{}
	}
	return snapshotMsg(m.source.Snapshot())
}

func (m *statusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchSnapshot, tickCmd(m.interval))
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.fetchSnapshot, tickCmd(m.interval))
	case snapshotMsg:
		m.snap = Snapshot(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *statusModel) View() string {
	if m.quitting {
		return "\n"
	}

	watcherLine := fmt.Sprintf("%s watcher: %s", m.spinner.View(), m.styles.Active.Render(m.snap.WatcherState))
	queueLine := fmt.Sprintf("queue: %s queued, %s running, %s retrying, %s failed",
		m.styles.Label.Render(fmt.Sprintf("%d", m.snap.QueuedJobs)),
		m.styles.Active.Render(fmt.Sprintf("%d", m.snap.RunningJobs)),
		m.styles.Warning.Render(fmt.Sprintf("%d", m.snap.RetryingJobs)),
		m.styles.Error.Render(fmt.Sprintf("%d", m.snap.FailedJobs)))
	indexLine := fmt.Sprintf("index: %s files, %s chunks",
		m.styles.Label.Render(fmt.Sprintf("%d", m.snap.FileCount)),
		m.styles.Label.Render(fmt.Sprintf("%d", m.snap.ChunkCount)))
	embedLine := fmt.Sprintf("embedder: %s / %s", m.snap.EmbeddingBackend, m.snap.EmbeddingModel)

	content := strings.Join([]string{watcherLine, queueLine, indexLine, embedLine}, "\n")
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1)

	title := m.styles.Header.Render("rifflux status")
	hint := m.styles.Dim.Render("q to quit")
	return lipgloss.JoinVertical(lipgloss.Left, title, panel.Render(content), hint)
}

var _ Renderer = (*TUIRenderer)(nil)
var _ Renderer = (*PlainRenderer)(nil)
