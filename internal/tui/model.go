// Package tui provides the interactive terminal view of a running operation.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/applekraken/internal/orchestrator"
	"github.com/dusk-indust/applekraken/internal/status"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginLeft(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginLeft(1).
			MarginTop(1)

	countsStyle = lipgloss.NewStyle().
			Bold(true).
			MarginLeft(1)
)

// SnapshotSource is anything that can report a picker snapshot.
type SnapshotSource interface {
	Snapshot() orchestrator.Snapshot
}

// Model is the bubbletea model of the progress view.
type Model struct {
	source     SnapshotSource
	interval   time.Duration
	quitOnDone bool

	table      table.Model
	bar        progress.Model
	snap       orchestrator.Snapshot
	lastUpdate time.Time
	quitting   bool
}

type tickMsg time.Time

type snapshotMsg orchestrator.Snapshot

// Option configures a Model.
type Option func(*Model)

// WithInterval sets how often the snapshot is polled. Default 100ms.
func WithInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithQuitOnDone makes the program exit once the operation is done.
func WithQuitOnDone() Option {
	return func(m *Model) { m.quitOnDone = true }
}

// New creates a progress view polling source.
func New(source SnapshotSource, opts ...Option) Model {
	columns := []table.Column{
		{Title: "#", Width: 4},
		{Title: "Apple", Width: 24},
		{Title: "Status", Width: 14},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("12"))
	t.SetStyles(s)

	m := Model{
		source:   source,
		interval: 100 * time.Millisecond,
		table:    t,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(m.source.Snapshot())
	}
}

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), m.poll())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		if w := msg.Width - 4; w > 10 && w < 80 {
			m.bar.Width = w
		}
		if h := msg.Height - 10; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.tickCmd(), m.poll())

	case snapshotMsg:
		m.snap = orchestrator.Snapshot(msg)
		m.lastUpdate = time.Now()
		m.table.SetRows(rows(m.snap))
		if m.quitOnDone && m.snap.State == orchestrator.StateDone {
			return m, tea.Quit
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func rows(s orchestrator.Snapshot) []table.Row {
	out := make([]table.Row, len(s.Pending))
	for i, target := range s.Pending {
		st := "queued"
		if i == 0 && target == s.InFlight {
			st = string(s.EffectorState)
		}
		out[i] = table.Row{fmt.Sprintf("%d", i+1), string(target), st}
	}
	return out
}

// View renders the progress view.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	title := titleStyle.Render("Apple picker")
	ts := timestampStyle.Render(fmt.Sprintf("Last update: %s", m.lastUpdate.Format("15:04:05")))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, title, strings.Repeat(" ", 5), ts))
	b.WriteString("\n\n")

	if m.snap.OperationID == "" {
		b.WriteString(countsStyle.Render("No operation has been started."))
		b.WriteString("\n")
	} else {
		b.WriteString(countsStyle.Render(status.Summary(m.snap)))
		b.WriteString("\n ")
		b.WriteString(m.bar.ViewAs(m.snap.Progress))
		b.WriteString("\n\n")
		b.WriteString(m.table.View())
		b.WriteString("\n")
		if m.snap.LastFailure != "" {
			b.WriteString(timestampStyle.Render(" Last failure: " + m.snap.LastFailure))
			b.WriteString("\n")
		}
	}

	b.WriteString(helpStyle.Render("q: quit"))
	b.WriteString("\n")
	return b.String()
}

// Run starts the program and blocks until the user quits or, with
// WithQuitOnDone, the operation finishes.
func Run(source SnapshotSource, opts ...Option) error {
	_, err := tea.NewProgram(New(source, opts...)).Run()
	return err
}
