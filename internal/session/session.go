package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tradewatch/internal/capability"
	"github.com/rickgao/tradewatch/internal/config"
	"github.com/rickgao/tradewatch/internal/connection"
	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/poller"
	"github.com/rickgao/tradewatch/internal/progress"
	"github.com/rickgao/tradewatch/internal/render"
	"github.com/rickgao/tradewatch/internal/router"
	"github.com/rickgao/tradewatch/internal/version"
)

// Session is one running dashboard.
type Session struct {
	id      string
	cfg     *config.DashboardConfig
	deps    Deps
	logger  *slog.Logger
	sink    render.Sink
	push    bool
	tracker *progress.Tracker

	registry  router.Registry
	scheduler *poller.Scheduler
	adapter   *connection.Adapter

	fellBack atomic.Bool
	failed   atomic.Int64

	// Lifecycle
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a session and registers a sink for every category. The
// transport is chosen here from the configuration and the runtime.
func New(cfg *config.DashboardConfig, deps Deps, logger *slog.Logger) (*Session, error) {
	if deps.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	if deps.Display == nil {
		return nil, ErrNoDisplay
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := deps.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	logger = logger.With("session_id", id)

	s := &Session{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "session"),
	}
	if deps.Archive != nil {
		s.sink = render.Tee(deps.Display, deps.Archive)
	} else {
		s.sink = deps.Display
	}

	env := capability.Detect(cfg.Push.URL, cfg.Push.Disabled, !cfg.Push.SharedLanes)
	s.push = capability.SupportsPush(env)

	s.registry = router.NewRegistry(router.Config{Lanes: cfg.LaneConfigs()}, render.Format, logger)
	for _, cat := range model.Categories() {
		if err := s.registry.RegisterSink(cat, s.sink); err != nil {
			return nil, fmt.Errorf("register sink %s: %w", cat, err)
		}
		if !s.push && !cat.PollOnly() {
			if err := s.registry.SetDriver(cat, model.SourcePoll); err != nil {
				return nil, fmt.Errorf("set driver %s: %w", cat, err)
			}
		}
	}

	s.scheduler = poller.New(poller.Config{Timeout: cfg.Polling.FetchTimeout}, deps.Fetcher, s.registry, logger)
	if s.push {
		s.adapter = connection.NewAdapter(cfg.ClientConfig(version.UserAgent()), s.registry, deps.Display, logger)
	}

	s.tracker = progress.NewTracker(model.BootstrapCount, func() {
		s.logger.Info("bootstrap complete")
	})

	s.logger.Info("session created",
		"transport", s.Transport().String(),
		"workers", env.Workers,
		"archive", deps.Archive != nil,
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Transport returns the transport chosen at creation.
func (s *Session) Transport() model.Source {
	if s.push {
		return model.SourcePush
	}
	return model.SourcePoll
}

// Registry returns the lane registry.
func (s *Session) Registry() router.Registry {
	return s.registry
}

// Tracker returns the bootstrap progress tracker.
func (s *Session) Tracker() *progress.Tracker {
	return s.tracker
}

// Start launches lanes, the chosen transport and the bootstrap loads.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.registry.Start(s.ctx); err != nil {
		s.cancel()
		return fmt.Errorf("start registry: %w", err)
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.Start(s.ctx); err != nil {
			s.cancel()
			return fmt.Errorf("start archive: %w", err)
		}
	}
	if err := s.scheduler.Start(s.ctx); err != nil {
		s.cancel()
		return fmt.Errorf("start scheduler: %w", err)
	}
	s.started = true

	if s.push {
		if err := s.adapter.Start(s.ctx); err != nil {
			return fmt.Errorf("start push channel: %w", err)
		}
		s.wg.Add(1)
		go s.watchPush()
	} else {
		for _, cat := range model.Categories() {
			if !cat.PollOnly() {
				s.schedule(cat)
			}
		}
	}

	s.wg.Add(1)
	go s.bootstrap()

	s.logger.Info("session started", "transport", s.Transport().String())
	return nil
}

// Stop closes the transport, drains every lane and stops the archive.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.mu.Unlock()

	s.logger.Info("stopping session")

	// Stop producers before the lanes so the final drain sees every envelope.
	if s.adapter != nil {
		if err := s.adapter.Stop(ctx); err != nil {
			s.logger.Warn("push channel stop", "error", err)
		}
	}
	if err := s.scheduler.Stop(ctx); err != nil {
		s.logger.Warn("scheduler stop", "error", err)
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("session stop timed out")
	}

	if err := s.registry.Stop(ctx); err != nil {
		s.logger.Warn("registry stop", "error", err)
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.Stop(ctx); err != nil {
			s.logger.Warn("archive stop", "error", err)
		}
	}

	s.logger.Info("session stopped")
	return nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	st := Status{
		SessionID: s.id,
		Transport: s.Transport().String(),
		FellBack:  s.fellBack.Load(),
		Progress: ProgressStatus{
			Completed: s.tracker.Completed(),
			Expected:  s.tracker.Expected(),
			Percent:   s.tracker.Percent(),
			Ready:     s.tracker.IsReady(),
			Failed:    int(s.failed.Load()),
		},
		Polling: s.scheduler.Tasks(),
	}
	if s.adapter != nil {
		ps := s.adapter.Stats()
		st.Push = &ps
	}
	return st
}

// schedule starts the poll loop of a category with its configured entry.
func (s *Session) schedule(cat model.Category) {
	entry, ok := s.cfg.ScheduleFor(cat)
	if !ok {
		s.logger.Warn("no poll schedule", "category", cat.String())
		return
	}
	if _, err := s.scheduler.Schedule(entry); err != nil {
		s.logger.Warn("schedule poll loop", "category", cat.String(), "error", err)
	}
}

// watchPush waits for the push channel to be lost and optionally moves every
// push-driven category to polling.
func (s *Session) watchPush() {
	defer s.wg.Done()

	select {
	case <-s.ctx.Done():
		return
	case <-s.adapter.Lost():
	}

	s.logger.Warn("push channel lost", "error", s.adapter.Err())
	if !s.cfg.Push.FallbackToPolling {
		return
	}
	s.fallback()
}

// fallback switches drivers before scheduling so the first poll result is
// accepted.
func (s *Session) fallback() {
	for _, cat := range model.Categories() {
		if cat.PollOnly() {
			continue
		}
		if err := s.registry.SetDriver(cat, model.SourcePoll); err != nil {
			s.logger.Warn("switch driver", "category", cat.String(), "error", err)
			continue
		}
		s.schedule(cat)
	}
	s.fellBack.Store(true)
	s.logger.Info("fell back to polling")
}

// bootstrap runs the staggered first loads. A failed load is logged and
// leaves the tracker short of ready.
func (s *Session) bootstrap() {
	defer s.wg.Done()

	g, ctx := errgroup.WithContext(s.ctx)
	for i, cat := range model.BootstrapCategories() {
		delay := s.cfg.Bootstrap.FirstDelay + time.Duration(i)*s.cfg.Bootstrap.Stagger
		g.Go(func() error {
			if !sleep(ctx, delay) {
				return nil
			}
			s.load(ctx, cat)
			return nil
		})
	}
	g.Wait()
}

func (s *Session) load(ctx context.Context, cat model.Category) {
	log := s.logger.With("category", cat.String())

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Polling.FetchTimeout)
	raw, err := s.deps.Fetcher.FetchCategory(fetchCtx, cat)
	cancel()
	if err != nil {
		s.failed.Add(1)
		log.Warn("bootstrap load failed", "error", err)
		return
	}

	payloads := []json.RawMessage{raw}
	frag, err := render.Format(cat, payloads)
	if err != nil {
		s.failed.Add(1)
		log.Warn("bootstrap format failed", "error", err)
		return
	}

	now := time.Now()
	s.sink.Render(render.Update{
		Category:  cat,
		Mode:      render.ModeFull,
		FirstLoad: true,
		Count:     1,
		Raw:       payloads,
		Fragment:  frag,
		FlushedAt: now,
	})

	completed, ready := s.tracker.RecordCompletion()
	s.deps.Display.BootstrapProgress(completed, s.tracker.Expected(), s.tracker.Percent())
	if ready {
		s.deps.Display.BootstrapReady()
	}
	log.Debug("bootstrap load", "completed", completed)

	if cat == model.CountryCodes {
		s.wg.Add(1)
		go s.startGeodata()
	}
}

// startGeodata begins polling country codes after the configured delay.
func (s *Session) startGeodata() {
	defer s.wg.Done()
	if !sleep(s.ctx, s.cfg.Bootstrap.GeodataDelay) {
		return
	}
	s.schedule(model.CountryCodes)
}

// sleep waits d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
