package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tradewatch/internal/lane"
	"github.com/rickgao/tradewatch/internal/render"
)

// Recorder batches flush records into a Store. It implements render.Sink so it
// can sit next to the UI sink.
type Recorder struct {
	cfg       Config
	sessionID string
	store     Store
	logger    *slog.Logger

	input *lane.Inbox[FlushRecord]

	// Batching
	batch   []FlushRecord
	batchMu sync.Mutex

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	metrics Metrics
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(cfg Config, sessionID string, store Store, logger *slog.Logger) *Recorder {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:       cfg,
		sessionID: sessionID,
		store:     store,
		logger:    logger.With("component", "archive"),
		input:     lane.NewInbox[FlushRecord](cfg.BufferSize),
		batch:     make([]FlushRecord, 0, cfg.BatchSize),
	}
}

// Render records an update. It never blocks the caller.
func (r *Recorder) Render(u render.Update) {
	r.Record(NewRecord(r.sessionID, u))
}

// Record queues a record. Returns false once the recorder is stopped.
func (r *Recorder) Record(rec FlushRecord) bool {
	if !r.input.Send(rec) {
		r.batchMu.Lock()
		r.metrics.Dropped++
		r.batchMu.Unlock()
		return false
	}
	return true
}

// Start begins consuming records and writing batches.
func (r *Recorder) Start(ctx context.Context) error {
	r.batchMu.Lock()
	if r.started {
		r.batchMu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.batchMu.Unlock()

	// Only Stop ends the loop, so the final batch is written after ctx is done.
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	r.wg.Add(1)
	go r.consumeLoop()

	r.logger.Info("archive recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued records, writes the final batch and closes the store.
func (r *Recorder) Stop(ctx context.Context) error {
	r.batchMu.Lock()
	started := r.started
	r.batchMu.Unlock()
	if !started {
		return ErrNotStarted
	}

	r.logger.Info("stopping archive recorder")
	r.input.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("archive recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("archive recorder stop timed out")
		r.cancel()
	}

	r.cancel()
	return r.store.Close()
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	m := r.metrics
	m.Recorded = r.input.Stats().TotalReceived
	return m
}

// consumeLoop moves records from the inbox into the batch until the inbox is
// closed and empty.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush()
		case <-r.input.Ready():
			for _, rec := range r.input.DrainTo(0) {
				r.handleRecord(rec)
			}
			if r.input.Closed() && r.input.Len() == 0 {
				r.flush()
				return
			}
		}
	}
}

func (r *Recorder) handleRecord(rec FlushRecord) {
	r.batchMu.Lock()
	r.batch = append(r.batch, rec)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// flush writes the current batch to the store.
func (r *Recorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]FlushRecord, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	n, err := r.store.Insert(r.ctx, batch)
	if err != nil {
		r.logger.Error("archive insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(n)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed archive records",
		"count", len(batch),
		"duration", time.Since(start),
	)
}
