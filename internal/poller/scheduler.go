package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/tradewatch/internal/model"
)

// Task is the handle of one poll loop.
type Task struct {
	entry ScheduleEntry

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	fetches  atomic.Int64
	failures atomic.Int64
}

// Entry returns the schedule the task runs on.
func (t *Task) Entry() ScheduleEntry {
	return t.entry
}

// Stop prevents any further fetch. A fetch already in flight completes.
func (t *Task) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stats returns task counters.
func (t *Task) Stats() TaskStats {
	stopped := false
	select {
	case <-t.stop:
		stopped = true
	default:
	}
	return TaskStats{
		Category:     t.entry.Category.String(),
		Interval:     t.entry.Interval,
		InitialDelay: t.entry.InitialDelay,
		Fetches:      t.fetches.Load(),
		Failures:     t.failures.Load(),
		Stopped:      stopped,
	}
}

// Scheduler runs independent poll loops and routes their results.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	router  Router
	logger  *slog.Logger

	mu    sync.Mutex
	tasks map[model.Category]*Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler.
func New(cfg Config, fetcher Fetcher, router Router, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	return &Scheduler{
		cfg:     cfg,
		fetcher: fetcher,
		router:  router,
		logger:  logger.With("component", "poller"),
		tasks:   make(map[model.Category]*Task),
	}
}

// Start prepares the scheduler. Loops begin with Schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("poll scheduler started", "fetch_timeout", s.cfg.Timeout)
	return nil
}

// Stop ends every loop and waits for in-flight fetches.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	for _, t := range s.tasks {
		t.Stop()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("poll scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule starts a loop for entry. A category can have only one live loop.
func (s *Scheduler) Schedule(entry ScheduleEntry) (*Task, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return nil, ErrNotStarted
	}
	if s.ctx.Err() != nil {
		return nil, s.ctx.Err()
	}
	if _, ok := s.tasks[entry.Category]; ok {
		return nil, ErrAlreadyScheduled
	}

	t := &Task{
		entry: entry,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.tasks[entry.Category] = t

	s.wg.Add(1)
	go s.run(t)

	s.logger.Debug("poll loop scheduled",
		"category", entry.Category.String(),
		"interval", entry.Interval,
		"initial_delay", entry.InitialDelay,
	)
	return t, nil
}

// StopTask stops the loop of a category. Returns false if none was scheduled.
func (s *Scheduler) StopTask(cat model.Category) bool {
	s.mu.Lock()
	t, ok := s.tasks[cat]
	delete(s.tasks, cat)
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.Stop()
	s.logger.Debug("poll loop stopped", "category", cat.String())
	return true
}

// Scheduled reports whether a category has a live loop.
func (s *Scheduler) Scheduled(cat model.Category) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[cat]
	return ok
}

// Tasks returns counters for every live loop in category order.
func (s *Scheduler) Tasks() []TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStats, 0, len(s.tasks))
	for _, cat := range model.Categories() {
		if t, ok := s.tasks[cat]; ok {
			out = append(out, t.Stats())
		}
	}
	return out
}

// run is the loop of one task.
func (s *Scheduler) run(t *Task) {
	defer s.wg.Done()
	defer close(t.done)

	timer := time.NewTimer(t.entry.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.stop:
			return
		case <-timer.C:
		}

		// A stop that raced with the timer still wins.
		select {
		case <-s.ctx.Done():
			return
		case <-t.stop:
			return
		default:
		}

		s.poll(t)
		timer.Reset(t.entry.Interval)
	}
}

// poll fetches and routes a single category.
func (s *Scheduler) poll(t *Task) {
	cat := t.entry.Category

	// Derived from the scheduler so that Task.Stop never aborts a fetch.
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	t.fetches.Add(1)
	data, err := s.fetcher.FetchCategory(ctx, cat)
	if err != nil {
		t.failures.Add(1)
		s.logger.Warn("poll failed",
			"category", cat.String(),
			"error", &FetchError{Category: cat, Err: err},
		)
		return
	}

	env := model.Envelope{
		Category:   cat,
		Event:      cat.Event(),
		Payload:    data,
		Source:     model.SourcePoll,
		Snapshot:   true,
		ReceivedAt: time.Now(),
	}
	if err := s.router.Route(env); err != nil {
		s.logger.Debug("poll result not routed", "category", cat.String(), "error", err)
	}
}
