package router

import (
	"errors"

	"github.com/rickgao/tradewatch/internal/lane"
	"github.com/rickgao/tradewatch/internal/model"
)

var (
	// ErrUnknownCategory is returned by Route for envelopes whose tag does not
	// map to a category. It is the same value as model.ErrUnknownCategory.
	ErrUnknownCategory = model.ErrUnknownCategory
	ErrWrongTransport  = errors.New("category is driven by another transport")
	ErrSinkRegistered  = errors.New("sink already registered for category")
	ErrMissingSink     = errors.New("no sink registered for category")
	ErrNilSink         = errors.New("nil sink")
	ErrInvalidSource   = errors.New("invalid transport source")
	ErrAlreadyStarted  = errors.New("registry already started")
	ErrNotStarted      = errors.New("registry not started")
	ErrStopped         = errors.New("registry stopped")
)

// Config holds the per-category lane thresholds.
type Config struct {
	Lanes map[model.Category]lane.Config
}

// DefaultConfig returns lane.DefaultConfig for every category.
func DefaultConfig() Config {
	cfg := Config{Lanes: make(map[model.Category]lane.Config)}
	for _, cat := range model.Categories() {
		cfg.Lanes[cat] = lane.DefaultConfig(cat)
	}
	return cfg
}

// laneConfig returns the configured thresholds for cat, falling back to defaults.
func (c Config) laneConfig(cat model.Category) lane.Config {
	if lc, ok := c.Lanes[cat]; ok {
		return lc
	}
	return lane.DefaultConfig(cat)
}

// Stats contains runtime statistics.
type Stats struct {
	Routed         int64             `json:"routed"`
	Unknown        int64             `json:"unknown"`
	WrongTransport int64             `json:"wrong_transport"`
	Rejected       int64             `json:"rejected"`
	FormatErrors   int64             `json:"format_errors"`
	Drivers        map[string]string `json:"drivers"`
	Lanes          []lane.Stats      `json:"lanes"`
}
