package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/tradewatch/internal/model"
)

// Router accepts decoded envelopes.
type Router interface {
	Route(env model.Envelope) error
}

// Adapter drives one push connection through
// Connecting -> Open -> {Closed, Errored} and feeds decoded frames to a Router.
// There is no reconnect; a lost connection stays lost.
type Adapter struct {
	cfg       ClientConfig
	router    Router
	banner    Banner
	logger    *slog.Logger
	newClient func(ClientConfig, *slog.Logger) Client

	mu     sync.RWMutex
	state  State
	err    error
	client Client // Set once dialed; kept after loss for its counters

	lost     chan struct{}
	lostOnce sync.Once

	frames        atomic.Int64
	routed        atomic.Int64
	controlFrames atomic.Int64
	decodeErrors  atomic.Int64
	routeErrors   atomic.Int64

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAdapter creates an adapter. banner may be nil.
func NewAdapter(cfg ClientConfig, router Router, banner Banner, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:       cfg,
		router:    router,
		banner:    banner,
		logger:    logger.With("component", "push"),
		newClient: NewClient,
		lost:      make(chan struct{}),
	}
}

// Start dials in the background. Dial failures surface as a lost signal.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.setState(StateConnecting)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("push channel connecting", "url", a.cfg.URL)
	return nil
}

// Stop closes the connection. A local stop never emits the lost signal.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.started.Load() {
		return nil
	}
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("push channel stopped", "state", a.State().String())
		return nil
	case <-ctx.Done():
		a.logger.Warn("push channel stop timed out")
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Lost is closed when the connection is lost (not on a local Stop).
func (a *Adapter) Lost() <-chan struct{} {
	return a.lost
}

// Err returns the cause of the loss wrapped in ErrTransportLost, or nil.
func (a *Adapter) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Stats returns push channel counters.
func (a *Adapter) Stats() AdapterStats {
	return AdapterStats{
		State:         a.State().String(),
		Frames:        a.frames.Load(),
		Routed:        a.routed.Load(),
		ControlFrames: a.controlFrames.Load(),
		DecodeErrors:  a.decodeErrors.Load(),
		RouteErrors:   a.routeErrors.Load(),
		DroppedFrames: a.droppedFrames(),
	}
}

func (a *Adapter) droppedFrames() int64 {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return 0
	}
	return client.Stats().Dropped
}

func (a *Adapter) run() {
	defer a.wg.Done()

	client := a.newClient(a.cfg, a.logger)
	if err := client.Connect(a.ctx); err != nil {
		if a.ctx.Err() != nil {
			a.setState(StateClosed)
			return
		}
		a.fail(StateErrored, fmt.Errorf("dial: %w", err))
		return
	}
	defer client.Close()

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()

	if a.ctx.Err() != nil {
		a.setState(StateClosed)
		return
	}

	a.setState(StateOpen)
	a.logger.Info("push channel open")
	if a.banner != nil {
		a.banner.ConnectionOpened()
	}

	for {
		select {
		case <-a.ctx.Done():
			a.setState(StateClosed)
			return

		case msg := <-client.Frames():
			a.handle(msg)

		case d := <-client.Ended():
			a.drain(client)
			if a.ctx.Err() != nil {
				a.setState(StateClosed)
				return
			}
			if d.Clean {
				a.fail(StateClosed, d)
			} else {
				a.fail(StateErrored, d)
			}
			return
		}
	}
}

// drain handles frames that were read before the connection ended.
func (a *Adapter) drain(client Client) {
	for {
		select {
		case msg := <-client.Frames():
			a.handle(msg)
		default:
			return
		}
	}
}

func (a *Adapter) handle(msg TimestampedMessage) {
	a.frames.Add(1)

	env, err := Decode(msg.Data, msg.ReceivedAt)
	if err != nil {
		a.decodeErrors.Add(1)
		a.logger.Warn("dropping undecodable frame", "error", err, "size", len(msg.Data))
		return
	}

	if env.Event == EventSocketOpened {
		a.controlFrames.Add(1)
		a.logger.Debug("push channel acknowledged by server")
		return
	}

	if err := a.router.Route(env); err != nil {
		a.routeErrors.Add(1)
		return
	}
	a.routed.Add(1)
}

func (a *Adapter) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		return
	}
	a.state = s
}

// fail moves to a terminal state and emits the lost signal once.
func (a *Adapter) fail(s State, cause error) {
	a.lostOnce.Do(func() {
		a.mu.Lock()
		if !a.state.Terminal() {
			a.state = s
		}
		a.err = fmt.Errorf("%w: %w", ErrTransportLost, cause)
		a.mu.Unlock()

		a.logger.Warn("push channel lost", "state", s.String(), "error", cause)
		close(a.lost)
		if a.banner != nil {
			a.banner.ConnectionLost()
		}
	})
}
