package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/narwhalmedia/segload/internal/domain/download"
)

// StartedMsg is sent when the task starts running
type StartedMsg struct{}

// ProgressMsg carries a progress snapshot
type ProgressMsg download.Progress

// PausedMsg is sent when the task paused
type PausedMsg struct{}

// CompletedMsg is sent when the target file is complete
type CompletedMsg struct {
	Path string
}

// FailedMsg is sent when the task failed or was canceled
type FailedMsg struct {
	Err error
}

// Tracker is a download callback that turns notifications into program
// messages. It never blocks the transfer: progress is dropped while the
// program lags behind, and the single terminal message has its own slot.
type Tracker struct {
	updates  chan tea.Msg
	terminal chan tea.Msg
}

// NewTracker creates a tracker
func NewTracker() *Tracker {
	return &Tracker{
		updates:  make(chan tea.Msg, 64),
		terminal: make(chan tea.Msg, 1),
	}
}

func (t *Tracker) OnStart() {
	t.offer(StartedMsg{})
}

func (t *Tracker) OnProgressChange(p download.Progress) {
	t.offer(ProgressMsg(p))
}

func (t *Tracker) OnPause() {
	t.finish(PausedMsg{})
}

func (t *Tracker) OnComplete(path string) {
	t.finish(CompletedMsg{Path: path})
}

func (t *Tracker) OnFailure(err error) {
	t.finish(FailedMsg{Err: err})
}

func (t *Tracker) offer(msg tea.Msg) {
	select {
	case t.updates <- msg:
	default:
	}
}

func (t *Tracker) finish(msg tea.Msg) {
	select {
	case t.terminal <- msg:
	default:
	}
}

// Next blocks until the next message. Pending updates are drained before the
// terminal message so the final view shows the last progress.
func (t *Tracker) Next() tea.Msg {
	select {
	case msg := <-t.updates:
		return msg
	default:
	}
	select {
	case msg := <-t.updates:
		return msg
	case msg := <-t.terminal:
		return msg
	}
}

func (t *Tracker) wait() tea.Cmd {
	return t.Next
}
