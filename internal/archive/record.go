package archive

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/tradewatch/internal/render"
)

var (
	ErrAlreadyStarted = errors.New("recorder already started")
	ErrNotStarted     = errors.New("recorder not started")
	ErrUnknownDriver  = errors.New("unknown archive driver")
)

// FlushRecord is one archived update.
type FlushRecord struct {
	ID        uuid.UUID
	SessionID string
	Category  string
	Mode      string
	FirstLoad bool
	Count     int
	Bytes     int
	Reason    string
	OpenedAt  time.Time
	FlushedAt time.Time
}

// Window returns how long the batch was open. Zero for first loads.
func (r FlushRecord) Window() time.Duration {
	if r.OpenedAt.IsZero() || r.FlushedAt.Before(r.OpenedAt) {
		return 0
	}
	return r.FlushedAt.Sub(r.OpenedAt)
}

// NewRecord converts a rendered update to a record.
func NewRecord(sessionID string, u render.Update) FlushRecord {
	flushed := u.FlushedAt
	if flushed.IsZero() {
		flushed = time.Now()
	}
	return FlushRecord{
		ID:        uuid.New(),
		SessionID: sessionID,
		Category:  u.Category.String(),
		Mode:      u.Mode.String(),
		FirstLoad: u.FirstLoad,
		Count:     u.Count,
		Bytes:     u.Bytes(),
		Reason:    u.Reason,
		OpenedAt:  u.OpenedAt,
		FlushedAt: flushed,
	}
}

// Store persists batches of records.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, records []FlushRecord) (int, error)
	Close() error
}

// Config holds recorder settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // Initial inbox capacity; grows on demand
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
		BufferSize:    1000,
	}
}

// Metrics contains recorder counters.
type Metrics struct {
	Recorded int64 `json:"recorded"`
	Inserts  int64 `json:"inserts"`
	Errors   int64 `json:"errors"`
	Flushes  int64 `json:"flushes"`
	Dropped  int64 `json:"dropped"` // Records offered after Stop
}
