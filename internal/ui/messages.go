package ui

import "github.com/rickgao/tradewatch/internal/render"

// UpdateMsg carries one rendered update into the program.
type UpdateMsg struct {
	Update render.Update
}

// ConnectionMsg reports a push channel transition.
type ConnectionMsg struct {
	Lost bool
}

// ProgressMsg reports a completed bootstrap load.
type ProgressMsg struct {
	Completed int
	Expected  int
	Percent   int
}

// ReadyMsg is sent once every bootstrap load has completed.
type ReadyMsg struct{}

type hideLoadingMsg struct{}

type clearFlashMsg struct{}

type cooldownMsg struct {
	bulk bool
}

type tradeResultMsg struct {
	message string
}
