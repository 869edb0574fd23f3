package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	progressOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("✓")
	progressFail = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("✗")
	progressDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// cycleFinishedMsg carries the outcome of a cycle: a short outcome word such
// as a post status, or the error that ended it.
type cycleFinishedMsg struct {
	outcome string
	err     error
}

// cycleProgress shows a ticking elapsed time while a cycle runs and leaves
// one outcome line behind when it ends.
type cycleProgress struct {
	spinner spinner.Model
	label   string
	run     tea.Cmd
	started time.Time
	now     func() time.Time

	finished bool
	elapsed  time.Duration
	outcome  string
	err      error
}

func newCycleProgress(label string, run tea.Cmd, now func() time.Time) cycleProgress {
	if now == nil {
		now = time.Now
	}
	s := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("43"))),
	)
	return cycleProgress{spinner: s, label: label, run: run, started: now(), now: now}
}

func (m cycleProgress) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m cycleProgress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cycleFinishedMsg:
		m.finished = true
		m.elapsed = m.now().Sub(m.started)
		m.outcome = msg.outcome
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m cycleProgress) View() string {
	if !m.finished {
		elapsed := m.now().Sub(m.started).Truncate(time.Second)
		return fmt.Sprintf("%s %s %s", m.spinner.View(), m.label, progressDim.Render(elapsed.String()))
	}

	took := progressDim.Render("(" + m.elapsed.Round(10*time.Millisecond).String() + ")")
	if m.err != nil {
		return fmt.Sprintf("%s %s failed %s\n", progressFail, m.label, took)
	}
	outcome := m.outcome
	if outcome == "" {
		outcome = "done"
	}
	return fmt.Sprintf("%s %s %s %s\n", progressOK, m.label, outcome, took)
}

// runCycle runs work behind a progress line on output. work reports a short
// outcome word for the final line; its error is returned unchanged.
func runCycle(ctx context.Context, output io.Writer, label string, work func(context.Context) (string, error)) error {
	run := func() tea.Msg {
		outcome, err := work(ctx)
		return cycleFinishedMsg{outcome: outcome, err: err}
	}

	p := tea.NewProgram(
		newCycleProgress(label, run, nil),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	final, err := p.Run()
	if err != nil {
		return err
	}
	progress, ok := final.(cycleProgress)
	if !ok {
		return fmt.Errorf("unexpected progress model type %T", final)
	}
	return progress.err
}
