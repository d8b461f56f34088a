package lane

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/tradewatch/internal/model"
)

var (
	ErrAlreadyStarted = errors.New("lane already started")
	ErrNotStarted     = errors.New("lane not started")
)

// Lane coalesces the envelopes of one category and hands them to its
// FlushFunc when either the count or the deadline threshold is reached.
//
// All window state is owned by the lane goroutine. Submit only enqueues.
type Lane struct {
	category model.Category
	cfg      Config
	flushFn  FlushFunc
	logger   *slog.Logger
	inbox    *Inbox[model.Envelope]

	// Window state. Written only by the lane goroutine; mu lets Snapshot read it.
	mu          sync.Mutex
	payloads    []json.RawMessage
	count       int
	full        bool
	windowStart time.Time
	timer       *time.Timer

	submitted       atomic.Int64
	flushed         atomic.Int64
	flushes         atomic.Int64
	countFlushes    atomic.Int64
	deadlineFlushes atomic.Int64
	valveFlushes    atomic.Int64
	drainFlushes    atomic.Int64

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a lane. Zero thresholds in cfg fall back to DefaultConfig.
func New(cat model.Category, cfg Config, flush FlushFunc, logger *slog.Logger) *Lane {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults(cat)
	return &Lane{
		category: cat,
		cfg:      cfg,
		flushFn:  flush,
		logger:   logger.With("component", "lane", "category", cat.String()),
		inbox:    NewInbox[model.Envelope](cfg.InboxSize),
		done:     make(chan struct{}),
	}
}

// Category returns the category this lane batches.
func (l *Lane) Category() model.Category {
	return l.category
}

// Config returns the effective thresholds.
func (l *Lane) Config() Config {
	return l.cfg
}

// Start launches the lane goroutine.
func (l *Lane) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	l.ctx, l.cancel = context.WithCancel(ctx)

	go l.run()

	l.logger.Debug("lane started",
		"max_count", l.cfg.MaxCount,
		"max_wait", l.cfg.MaxWait,
		"policy", l.cfg.Policy.String(),
	)
	return nil
}

// Stop closes the inbox and waits for the lane to deliver everything still
// pending as a final drain batch.
func (l *Lane) Stop(ctx context.Context) error {
	if !l.started.Load() {
		return ErrNotStarted
	}
	l.inbox.Close()

	select {
	case <-l.done:
		l.cancel()
		return nil
	case <-ctx.Done():
		l.cancel()
		return ctx.Err()
	}
}

// Submit enqueues an envelope. It never blocks and returns false only once
// the lane has been stopped.
func (l *Lane) Submit(env model.Envelope) bool {
	return l.inbox.Send(env)
}

// Snapshot returns the current window state.
func (l *Lane) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Count:       l.count,
		Armed:       l.timer != nil,
		WindowStart: l.windowStart,
	}
}

// Stats returns lane counters.
func (l *Lane) Stats() Stats {
	l.mu.Lock()
	pending := l.count
	l.mu.Unlock()

	return Stats{
		Category:        l.category.String(),
		Submitted:       l.submitted.Load(),
		Flushed:         l.flushed.Load(),
		Flushes:         l.flushes.Load(),
		CountFlushes:    l.countFlushes.Load(),
		DeadlineFlushes: l.deadlineFlushes.Load(),
		ValveFlushes:    l.valveFlushes.Load(),
		DrainFlushes:    l.drainFlushes.Load(),
		Pending:         pending,
		Inbox:           l.inbox.Stats(),
	}
}

func (l *Lane) run() {
	defer close(l.done)

	for {
		select {
		case <-l.ctx.Done():
			l.drainInbox()
			l.flush(ReasonDrain)
			return

		case <-l.inbox.Ready():
			l.drainInbox()
			if l.inbox.Closed() && l.inbox.Len() == 0 {
				l.flush(ReasonDrain)
				return
			}

		case <-l.deadline():
			l.flush(ReasonDeadline)
		}
	}
}

func (l *Lane) drainInbox() {
	for _, env := range l.inbox.DrainTo(0) {
		l.submit(env)
	}
}

// deadline returns the pending timer channel, or nil when the window is empty.
func (l *Lane) deadline() <-chan time.Time {
	if l.timer == nil {
		return nil
	}
	return l.timer.C
}

func (l *Lane) submit(env model.Envelope) {
	// Valve: guards the same bound as the count trigger below.
	if l.count >= l.cfg.MaxCount {
		l.flush(ReasonValve)
	}

	l.mu.Lock()
	if l.count == 0 {
		l.windowStart = time.Now()
		l.timer = time.NewTimer(l.cfg.MaxWait)
	}
	switch l.cfg.Policy {
	case Accumulate:
		if env.Snapshot {
			l.payloads = l.payloads[:0]
			l.full = true
		}
		l.payloads = append(l.payloads, env.Payload)
	default:
		l.payloads = append(l.payloads[:0], env.Payload)
		l.full = true
	}
	l.count++
	reached := l.count >= l.cfg.MaxCount
	l.mu.Unlock()

	l.submitted.Add(1)

	if reached {
		l.flush(ReasonCount)
	}
}

func (l *Lane) flush(reason Reason) {
	l.mu.Lock()
	if l.count == 0 {
		l.mu.Unlock()
		return
	}
	batch := Batch{
		Category:  l.category,
		Payloads:  l.payloads,
		Count:     l.count,
		Full:      l.full,
		Reason:    reason,
		OpenedAt:  l.windowStart,
		FlushedAt: time.Now(),
	}
	l.payloads = nil
	l.count = 0
	l.full = false
	l.windowStart = time.Time{}
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.mu.Unlock()

	l.flushes.Add(1)
	l.flushed.Add(int64(batch.Count))
	switch reason {
	case ReasonCount:
		l.countFlushes.Add(1)
	case ReasonDeadline:
		l.deadlineFlushes.Add(1)
	case ReasonValve:
		l.valveFlushes.Add(1)
	case ReasonDrain:
		l.drainFlushes.Add(1)
	}

	l.logger.Debug("lane flushed",
		"reason", reason.String(),
		"count", batch.Count,
		"payloads", len(batch.Payloads),
		"window", batch.FlushedAt.Sub(batch.OpenedAt),
	)

	l.deliver(batch)
}

func (l *Lane) deliver(batch Batch) {
	if l.flushFn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("flush consumer panicked", "panic", r, "reason", batch.Reason.String())
		}
	}()
	l.flushFn(batch)
}
