package render

import (
	"encoding/json"
	"time"

	"github.com/rickgao/tradewatch/internal/model"
)

// Mode tells the sink whether an update replaces or extends a panel.
type Mode uint8

const (
	ModeFull Mode = iota + 1
	ModePartial
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModePartial:
		return "partial"
	default:
		return "none"
	}
}

// Point is one labelled value for charts.
type Point struct {
	Label string
	Value float64
}

// Fragment is a pre-formatted panel body.
type Fragment struct {
	Title   string
	Columns []string
	Rows    [][]string
	Series  []Point
}

// Empty reports whether the fragment has nothing to show.
func (f Fragment) Empty() bool {
	return len(f.Rows) == 0 && len(f.Series) == 0
}

// Update is handed to a Sink for every flush or first load.
type Update struct {
	Category  model.Category
	Mode      Mode
	FirstLoad bool
	Count     int // Number of inbound units coalesced into this update
	Raw       []json.RawMessage
	Fragment  Fragment
	Reason    string // Flush trigger, empty for first loads
	OpenedAt  time.Time
	FlushedAt time.Time
}

// Bytes returns the total raw payload size.
func (u Update) Bytes() int {
	n := 0
	for _, r := range u.Raw {
		n += len(r)
	}
	return n
}

// Sink consumes updates for one or more categories.
type Sink interface {
	Render(Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

// Render calls f(u).
func (f SinkFunc) Render(u Update) {
	f(u)
}

// Formatter converts the payloads of one flush into a fragment.
type Formatter func(cat model.Category, payloads []json.RawMessage) (Fragment, error)

// Tee returns a Sink that renders every update to each non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	var out teeSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type teeSink []Sink

func (t teeSink) Render(u Update) {
	for _, s := range t {
		s.Render(u)
	}
}
