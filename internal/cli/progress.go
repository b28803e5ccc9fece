package cli

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/chatmem/chatmem/internal/store"
)

const pollInterval = 100 * time.Millisecond

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// progressModel is the bubbletea model for reindex progress.
type progressModel struct {
	job      *store.ReindexJob
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(job *store.ReindexJob) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		job:      job,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.job.Done() {
			m.done = true
			m.err = m.job.Err()
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	var pct float64
	if m.job.Total() > 0 {
		pct = float64(m.job.Progress()) / float64(m.job.Total())
	}

	status := m.theme.statusStyle().Render("[reindexing]")
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d memories", m.job.Progress(), m.job.Total())
	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nReindex cancelled.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Reindex failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Completed\n")
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runReindexProgress runs the interactive progress UI for a reindex
// job. Reports whether the user cancelled; job failures come back
// through the error.
func runReindexProgress(job *store.ReindexJob) (cancelled bool, err error) {
	model := newProgressModel(job)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return true, nil
		}
		if m.err != nil {
			return false, m.err
		}
	}
	return false, nil
}
