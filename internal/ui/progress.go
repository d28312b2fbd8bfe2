// Package ui renders a single download in the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/narwhalmedia/segload/pkg/errors"
)

const maxWidth = 80

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pad        = lipgloss.NewStyle().Padding(1, 2).Render
)

type state int

const (
	stateWaiting state = iota
	stateRunning
	statePausing
	statePaused
	stateComplete
	stateFailed
)

// Model shows the progress of one download until it pauses, completes or fails
type Model struct {
	name      string
	tracker   *Tracker
	interrupt func()
	progress  progress.Model

	state   state
	current int64
	total   int64
	percent int
	path    string
	err     error
}

// NewModel creates a model reading tracker. interrupt is called on the first
// ctrl+c and should pause the task; a second ctrl+c quits immediately.
func NewModel(name string, tracker *Tracker, interrupt func()) Model {
	return Model{
		name:      name,
		tracker:   tracker,
		interrupt: interrupt,
		progress:  progress.New(progress.WithDefaultGradient()),
	}
}

func (m Model) Init() tea.Cmd {
	return m.tracker.wait()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == statePausing {
				return m, tea.Quit
			}
			m.state = statePausing
			if m.interrupt != nil {
				m.interrupt()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.progress.Width = min(msg.Width-4, maxWidth)
		return m, nil

	case StartedMsg:
		if m.state == stateWaiting {
			m.state = stateRunning
		}
		return m, m.tracker.wait()

	case ProgressMsg:
		if m.state == stateWaiting {
			m.state = stateRunning
		}
		m.current, m.total, m.percent = msg.Current, msg.Total, msg.Percent
		return m, m.tracker.wait()

	case PausedMsg:
		m.state = statePaused
		return m, tea.Quit

	case CompletedMsg:
		m.state = stateComplete
		m.path = msg.Path
		m.percent = 100
		if m.total > 0 {
			m.current = m.total
		}
		return m, tea.Quit

	case FailedMsg:
		m.state = stateFailed
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.name))
	b.WriteString("\n")
	b.WriteString(m.progress.ViewAs(float64(m.percent) / 100))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(m.sizeLine()))
	b.WriteString("\n")

	switch m.state {
	case stateWaiting:
		b.WriteString(infoStyle.Render("waiting for a free slot"))
	case stateRunning:
		b.WriteString(infoStyle.Render("downloading, ctrl+c to pause"))
	case statePausing:
		b.WriteString(infoStyle.Render("pausing..."))
	case statePaused:
		b.WriteString(infoStyle.Render("paused, run the same command again to resume"))
	case stateComplete:
		b.WriteString(doneStyle.Render("saved to " + m.path))
	case stateFailed:
		if errors.IsCanceled(m.err) {
			b.WriteString(errorStyle.Render("canceled"))
		} else {
			b.WriteString(errorStyle.Render(fmt.Sprintf("failed: %v", m.err)))
		}
	}
	return pad(b.String()) + "\n"
}

func (m Model) sizeLine() string {
	if m.total <= 0 {
		return fmt.Sprintf("%s of unknown size", humanize.IBytes(uint64(m.current)))
	}
	return fmt.Sprintf("%s / %s (%d%%)",
		humanize.IBytes(uint64(m.current)),
		humanize.IBytes(uint64(m.total)),
		m.percent,
	)
}

// Paused reports whether the program ended because the task paused
func (m Model) Paused() bool {
	return m.state == statePaused
}

// Err returns the failure that ended the program, if any
func (m Model) Err() error {
	return m.err
}
