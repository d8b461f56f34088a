package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/tradewatch/internal/model"
)

var (
	ErrNotStarted       = errors.New("scheduler not started")
	ErrAlreadyStarted   = errors.New("scheduler already started")
	ErrAlreadyScheduled = errors.New("category already scheduled")
	ErrInvalidEntry     = errors.New("invalid schedule entry")
)

// Fetcher loads the current payload of a category.
type Fetcher interface {
	FetchCategory(ctx context.Context, cat model.Category) (json.RawMessage, error)
}

// FetcherFunc is a function adapter for Fetcher.
type FetcherFunc func(ctx context.Context, cat model.Category) (json.RawMessage, error)

func (f FetcherFunc) FetchCategory(ctx context.Context, cat model.Category) (json.RawMessage, error) {
	return f(ctx, cat)
}

// Router accepts fetched envelopes.
type Router interface {
	Route(env model.Envelope) error
}

// FetchError is a failed poll.
type FetchError struct {
	Category model.Category
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ScheduleEntry drives one poll loop. It is immutable once scheduled.
type ScheduleEntry struct {
	Category     model.Category
	Interval     time.Duration
	InitialDelay time.Duration
}

// Validate checks the entry.
func (e ScheduleEntry) Validate() error {
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown category %s", ErrInvalidEntry, e.Category)
	}
	if e.Interval <= 0 {
		return fmt.Errorf("%w: %s interval must be positive", ErrInvalidEntry, e.Category)
	}
	if e.InitialDelay < 0 {
		return fmt.Errorf("%w: %s initial delay must not be negative", ErrInvalidEntry, e.Category)
	}
	return nil
}

// Default poll intervals. First ticks are staggered by 250ms within a group.
const (
	DefaultTradesInterval   = 2 * time.Second
	DefaultCurrencyInterval = 4 * time.Second
	DefaultCountryInterval  = 6 * time.Second
	DefaultGeodataInterval  = 30 * time.Second
	DefaultStagger          = 250 * time.Millisecond
	DefaultFetchTimeout     = 10 * time.Second
)

var defaultSchedule = []ScheduleEntry{
	{model.LatestTrades, DefaultTradesInterval, DefaultTradesInterval},
	{model.SellVolume, DefaultCurrencyInterval, DefaultCurrencyInterval},
	{model.SellValue, DefaultCurrencyInterval, DefaultCurrencyInterval + DefaultStagger},
	{model.BuyVolume, DefaultCurrencyInterval, DefaultCurrencyInterval + 2*DefaultStagger},
	{model.BuyValue, DefaultCurrencyInterval, DefaultCurrencyInterval + 3*DefaultStagger},
	{model.CountryVolume, DefaultCountryInterval, DefaultCountryInterval},
	{model.CurrencyPairs, DefaultCountryInterval, DefaultCountryInterval + DefaultStagger},
	{model.CountryCodes, DefaultGeodataInterval, DefaultGeodataInterval},
}

// DefaultSchedule returns the default entry for every category.
func DefaultSchedule() []ScheduleEntry {
	out := make([]ScheduleEntry, len(defaultSchedule))
	copy(out, defaultSchedule)
	return out
}

// DefaultEntry returns the default entry for a category.
func DefaultEntry(cat model.Category) (ScheduleEntry, bool) {
	for _, e := range defaultSchedule {
		if e.Category == cat {
			return e, true
		}
	}
	return ScheduleEntry{}, false
}

// Config holds scheduler configuration.
type Config struct {
	Timeout time.Duration // Per-fetch timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Timeout: DefaultFetchTimeout}
}

// TaskStats contains per-loop counters.
type TaskStats struct {
	Category     string        `json:"category"`
	Interval     time.Duration `json:"interval"`
	InitialDelay time.Duration `json:"initial_delay"`
	Fetches      int64         `json:"fetches"`
	Failures     int64         `json:"failures"`
	Stopped      bool          `json:"stopped"`
}
