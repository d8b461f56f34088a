package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rickgao/tradewatch/internal/render"
)

// Sender is the part of *tea.Program the bridge uses.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards session events into a running program. Send blocks until
// the program loop accepts the message, so start the program before the
// session produces updates.
type Bridge struct {
	program Sender
}

// NewBridge creates a bridge to p.
func NewBridge(p Sender) *Bridge {
	return &Bridge{program: p}
}

// Render implements render.Sink.
func (b *Bridge) Render(u render.Update) {
	b.program.Send(UpdateMsg{Update: u})
}

// ConnectionOpened implements connection.Banner.
func (b *Bridge) ConnectionOpened() {
	b.program.Send(ConnectionMsg{Lost: false})
}

// ConnectionLost implements connection.Banner.
func (b *Bridge) ConnectionLost() {
	b.program.Send(ConnectionMsg{Lost: true})
}

// BootstrapProgress reports a completed initial load.
func (b *Bridge) BootstrapProgress(completed, expected, percent int) {
	b.program.Send(ProgressMsg{Completed: completed, Expected: expected, Percent: percent})
}

// BootstrapReady reports that every initial load completed.
func (b *Bridge) BootstrapReady() {
	b.program.Send(ReadyMsg{})
}
