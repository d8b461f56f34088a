package lane

import (
	"encoding/json"
	"time"

	"github.com/rickgao/tradewatch/internal/model"
)

// Policy decides how a submitted payload combines with the pending ones.
type Policy uint8

const (
	// Replace keeps only the most recent payload.
	Replace Policy = iota
	// Accumulate keeps every payload in submit order.
	Accumulate
)

func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Accumulate:
		return "accumulate"
	default:
		return "unknown"
	}
}

// Reason records which trigger caused a flush.
type Reason uint8

const (
	ReasonCount Reason = iota + 1
	ReasonDeadline
	ReasonValve
	ReasonDrain
)

func (r Reason) String() string {
	switch r {
	case ReasonCount:
		return "count"
	case ReasonDeadline:
		return "deadline"
	case ReasonValve:
		return "valve"
	case ReasonDrain:
		return "drain"
	default:
		return "none"
	}
}

// Default thresholds.
const (
	DefaultMaxCount      = 10
	DefaultMaxWait       = 2 * time.Second
	DefaultTradesMaxWait = 500 * time.Millisecond
	DefaultInboxSize     = 64
)

// Config holds the thresholds for one lane.
type Config struct {
	MaxCount  int           // Flush once this many submits are pending
	MaxWait   time.Duration // Flush this long after the first pending submit
	Policy    Policy
	InboxSize int // Initial inbox capacity; grows on demand
}

// DefaultConfig returns the thresholds used for a category.
// Latest trades use a short window and accumulate rows; every
// aggregate lane keeps only the newest snapshot.
func DefaultConfig(cat model.Category) Config {
	cfg := Config{
		MaxCount:  DefaultMaxCount,
		MaxWait:   DefaultMaxWait,
		Policy:    Replace,
		InboxSize: DefaultInboxSize,
	}
	if cat.Incremental() {
		cfg.MaxWait = DefaultTradesMaxWait
		cfg.Policy = Accumulate
	}
	return cfg
}

func (c *Config) applyDefaults(cat model.Category) {
	def := DefaultConfig(cat)
	if c.MaxCount <= 0 {
		c.MaxCount = def.MaxCount
	}
	if c.MaxWait <= 0 {
		c.MaxWait = def.MaxWait
	}
	if c.InboxSize <= 0 {
		c.InboxSize = def.InboxSize
	}
}

// Batch is the output of one flush.
type Batch struct {
	Category  model.Category
	Payloads  []json.RawMessage
	Count     int  // Number of submits coalesced into this batch
	Full      bool // Payloads replace the category rather than extend it
	Reason    Reason
	OpenedAt  time.Time // First submit of the window
	FlushedAt time.Time
}

// FlushFunc receives every batch, on the lane goroutine.
type FlushFunc func(Batch)

// State is a point-in-time view of the pending window.
type State struct {
	Count       int
	Armed       bool // A flush deadline is pending
	WindowStart time.Time
}

// Stats contains lane counters.
type Stats struct {
	Category        string     `json:"category"`
	Submitted       int64      `json:"submitted"`
	Flushed         int64      `json:"flushed"` // Submits delivered in batches
	Flushes         int64      `json:"flushes"`
	CountFlushes    int64      `json:"count_flushes"`
	DeadlineFlushes int64      `json:"deadline_flushes"`
	ValveFlushes    int64      `json:"valve_flushes"`
	DrainFlushes    int64      `json:"drain_flushes"`
	Pending         int        `json:"pending"`
	Inbox           InboxStats `json:"inbox"`
}
