package session

import (
	"context"
	"errors"

	"github.com/rickgao/tradewatch/internal/connection"
	"github.com/rickgao/tradewatch/internal/poller"
	"github.com/rickgao/tradewatch/internal/render"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
	ErrNoFetcher      = errors.New("session needs a fetcher")
	ErrNoDisplay      = errors.New("session needs a display")
)

// Display consumes everything a session produces for the user.
type Display interface {
	render.Sink
	connection.Banner
	BootstrapProgress(completed, expected, percent int)
	BootstrapReady()
}

// Archive records rendered updates. *archive.Recorder implements it.
type Archive interface {
	render.Sink
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Deps are the collaborators of a session.
type Deps struct {
	Fetcher   poller.Fetcher // REST source for bootstrap loads and polling
	Display   Display
	Archive   Archive // Optional
	SessionID string  // Generated when empty
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID string                   `json:"session_id"`
	Transport string                   `json:"transport"`
	FellBack  bool                     `json:"fell_back"`
	Push      *connection.AdapterStats `json:"push,omitempty"`
	Progress  ProgressStatus           `json:"progress"`
	Polling   []poller.TaskStats       `json:"polling"`
}

// ProgressStatus reports the bootstrap loads.
type ProgressStatus struct {
	Completed int  `json:"completed"`
	Expected  int  `json:"expected"`
	Percent   int  `json:"percent"`
	Ready     bool `json:"ready"`
	Failed    int  `json:"failed"`
}
