package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tradewatch/internal/lane"
	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/render"
)

// Registry owns one lane per category, routes envelopes to them and hands
// every flush to the sink registered for the category.
type Registry interface {
	// RegisterSink associates the consumer for a category. Once per category, before Start.
	RegisterSink(cat model.Category, sink render.Sink) error

	// SetDriver selects the transport whose envelopes a category accepts.
	SetDriver(cat model.Category, src model.Source) error

	// Driver returns the transport currently driving a category.
	Driver(cat model.Category) model.Source

	// Route submits an envelope to its lane. Errors are informational;
	// the envelope has already been dropped and counted.
	Route(env model.Envelope) error

	// Snapshot returns the pending window of a category's lane.
	Snapshot(cat model.Category) (lane.State, error)

	// Start launches every lane. Fails unless every category has a sink.
	Start(ctx context.Context) error

	// Stop drains every lane.
	Stop(ctx context.Context) error

	// Stats returns current registry statistics.
	Stats() Stats
}

type entry struct {
	lane   *lane.Lane
	sink   render.Sink
	driver atomic.Uint32
}

// registry is the internal implementation.
type registry struct {
	cfg    Config
	format render.Formatter
	logger *slog.Logger

	// Built once in NewRegistry, read-only afterwards.
	entries map[model.Category]*entry

	mu      sync.Mutex
	started bool
	stopped atomic.Bool

	routed         atomic.Int64
	unknown        atomic.Int64
	wrongTransport atomic.Int64
	rejected       atomic.Int64
	formatErrors   atomic.Int64
}

// NewRegistry creates one lane per category. Poll-only categories start
// driven by polling, every other category by push. A nil formatter uses render.Format.
func NewRegistry(cfg Config, format render.Formatter, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if format == nil {
		format = render.Format
	}

	r := &registry{
		cfg:     cfg,
		format:  format,
		logger:  logger.With("component", "registry"),
		entries: make(map[model.Category]*entry, len(model.Categories())),
	}
	for _, cat := range model.Categories() {
		e := &entry{}
		e.lane = lane.New(cat, cfg.laneConfig(cat), r.flushTo(e), logger)
		if cat.PollOnly() {
			e.driver.Store(uint32(model.SourcePoll))
		} else {
			e.driver.Store(uint32(model.SourcePush))
		}
		r.entries[cat] = e
	}
	return r
}

func (r *registry) RegisterSink(cat model.Category, sink render.Sink) error {
	e, ok := r.entries[cat]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, cat)
	}
	if sink == nil {
		return ErrNilSink
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	if e.sink != nil {
		return fmt.Errorf("%w: %s", ErrSinkRegistered, cat)
	}
	e.sink = sink
	return nil
}

func (r *registry) SetDriver(cat model.Category, src model.Source) error {
	e, ok := r.entries[cat]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, cat)
	}
	if src != model.SourcePush && src != model.SourcePoll {
		return ErrInvalidSource
	}
	if cat.PollOnly() && src == model.SourcePush {
		return fmt.Errorf("%w: %s is poll-only", ErrInvalidSource, cat)
	}

	prev := model.Source(e.driver.Swap(uint32(src)))
	if prev != src {
		r.logger.Info("category transport switched",
			"category", cat.String(),
			"from", prev.String(),
			"to", src.String(),
		)
	}
	return nil
}

func (r *registry) Driver(cat model.Category) model.Source {
	e, ok := r.entries[cat]
	if !ok {
		return 0
	}
	return model.Source(e.driver.Load())
}

func (r *registry) Route(env model.Envelope) error {
	e, ok := r.entries[env.Category]
	if !ok {
		r.unknown.Add(1)
		r.logger.Warn("dropping envelope for unknown category",
			"event", env.Event,
			"source", env.Source.String(),
		)
		return fmt.Errorf("%w: %q", ErrUnknownCategory, env.Event)
	}

	if driver := model.Source(e.driver.Load()); env.Source != driver {
		r.wrongTransport.Add(1)
		r.logger.Debug("dropping envelope from inactive transport",
			"category", env.Category.String(),
			"source", env.Source.String(),
			"driver", driver.String(),
		)
		return fmt.Errorf("%w: %s from %s", ErrWrongTransport, env.Category, env.Source)
	}

	if r.stopped.Load() {
		r.rejected.Add(1)
		return ErrStopped
	}

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		r.rejected.Add(1)
		return ErrNotStarted
	}

	if !e.lane.Submit(env) {
		r.rejected.Add(1)
		return ErrStopped
	}
	r.routed.Add(1)
	return nil
}

func (r *registry) Snapshot(cat model.Category) (lane.State, error) {
	e, ok := r.entries[cat]
	if !ok {
		return lane.State{}, fmt.Errorf("%w: %s", ErrUnknownCategory, cat)
	}
	return e.lane.Snapshot(), nil
}

// Start launches every lane.
func (r *registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	for _, cat := range model.Categories() {
		if r.entries[cat].sink == nil {
			return fmt.Errorf("%w: %s", ErrMissingSink, cat)
		}
	}

	for _, cat := range model.Categories() {
		if err := r.entries[cat].lane.Start(ctx); err != nil {
			return fmt.Errorf("start %s lane: %w", cat, err)
		}
	}
	r.started = true

	r.logger.Info("lane registry started", "lanes", len(r.entries))
	return nil
}

// Stop drains every lane concurrently.
func (r *registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	r.logger.Info("stopping lane registry")

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range model.Categories() {
		l := r.entries[cat].lane
		g.Go(func() error {
			if err := l.Stop(gctx); err != nil {
				return fmt.Errorf("stop %s lane: %w", l.Category(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Warn("lane registry stop timed out", "error", err)
		return err
	}

	r.logger.Info("lane registry stopped")
	return nil
}

func (r *registry) Stats() Stats {
	s := Stats{
		Routed:         r.routed.Load(),
		Unknown:        r.unknown.Load(),
		WrongTransport: r.wrongTransport.Load(),
		Rejected:       r.rejected.Load(),
		FormatErrors:   r.formatErrors.Load(),
		Drivers:        make(map[string]string, len(r.entries)),
	}
	for _, cat := range model.Categories() {
		e := r.entries[cat]
		s.Drivers[cat.String()] = model.Source(e.driver.Load()).String()
		s.Lanes = append(s.Lanes, e.lane.Stats())
	}
	return s
}

// flushTo returns the lane callback that formats a batch and hands it to
// the entry's sink. It runs on the lane goroutine, once per flush.
func (r *registry) flushTo(e *entry) lane.FlushFunc {
	return func(b lane.Batch) {
		frag, err := r.format(b.Category, b.Payloads)
		if err != nil {
			r.formatErrors.Add(1)
			r.logger.Warn("failed to format batch",
				"category", b.Category.String(),
				"count", b.Count,
				"error", err,
			)
		}

		mode := render.ModePartial
		if b.Full {
			mode = render.ModeFull
		}
		e.sink.Render(render.Update{
			Category:  b.Category,
			Mode:      mode,
			Count:     b.Count,
			Raw:       b.Payloads,
			Fragment:  frag,
			Reason:    b.Reason.String(),
			OpenedAt:  b.OpenedAt,
			FlushedAt: b.FlushedAt,
		})
	}
}
