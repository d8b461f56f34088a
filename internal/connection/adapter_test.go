package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tradewatch/internal/model"
)

type recordingRouter struct {
	mu   sync.Mutex
	envs []model.Envelope
	err  error
}

func (r *recordingRouter) Route(env model.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	if env.Category == model.Unknown {
		return model.ErrUnknownCategory
	}
	return r.err
}

func (r *recordingRouter) routed() []model.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Envelope, len(r.envs))
	copy(out, r.envs)
	return out
}

type countingBanner struct {
	opened atomic.Int32
	lost   atomic.Int32
}

func (b *countingBanner) ConnectionOpened() { b.opened.Add(1) }
func (b *countingBanner) ConnectionLost()   { b.lost.Add(1) }

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func waitLost(t *testing.T, a *Adapter) {
	t.Helper()
	select {
	case <-a.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for lost signal")
	}
}

func TestAdapter_RoutesFrames(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"SOCKET_OPENED"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"TRADE_PERSISTED","data":{"userId":"1"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"FOO","data":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"CURRENCY_PAIRS","data":[]}`))
		readUntilClosed(conn)
	})
	defer server.Close()

	router := &recordingRouter{}
	banner := &countingBanner{}
	a := NewAdapter(ClientConfig{URL: wsURL(server)}, router, banner, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return a.Stats().Routed == 2 && a.Stats().RouteErrors == 1 }, "routed frames")
	if a.State() != StateOpen {
		t.Errorf("State = %s, want open", a.State())
	}

	envs := router.routed()
	if envs[0].Category != model.LatestTrades || envs[2].Category != model.CurrencyPairs {
		t.Errorf("routed categories = %s, %s", envs[0].Category, envs[2].Category)
	}

	stats := a.Stats()
	if stats.Frames != 5 || stats.DecodeErrors != 1 || stats.ControlFrames != 1 || stats.RouteErrors != 1 || stats.Routed != 2 {
		t.Errorf("stats = %+v", stats)
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.State() != StateClosed {
		t.Errorf("State after Stop = %s", a.State())
	}
	if banner.opened.Load() != 1 || banner.lost.Load() != 0 {
		t.Errorf("banner opened=%d lost=%d, want 1/0", banner.opened.Load(), banner.lost.Load())
	}
	select {
	case <-a.Lost():
		t.Error("local stop should not signal lost")
	default:
	}
}

func TestAdapter_ServerCloseIsClosed(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"COUNTRIES_VOLUME","data":[]}`))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
		time.Sleep(50 * time.Millisecond)
	})
	defer server.Close()

	router := &recordingRouter{}
	banner := &countingBanner{}
	a := NewAdapter(ClientConfig{URL: wsURL(server)}, router, banner, nil)
	a.Start(context.Background())
	defer a.Stop(context.Background())

	waitLost(t, a)
	if a.State() != StateClosed {
		t.Errorf("State = %s, want closed", a.State())
	}
	if !errors.Is(a.Err(), ErrTransportLost) {
		t.Errorf("Err = %v, want ErrTransportLost", a.Err())
	}
	if banner.lost.Load() != 1 {
		t.Errorf("lost signals = %d, want 1", banner.lost.Load())
	}
	if len(router.routed()) != 1 {
		t.Errorf("frame before close not routed")
	}
}

func TestAdapter_AbruptCloseIsErrored(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Returning closes the socket without a close frame.
	})
	defer server.Close()

	banner := &countingBanner{}
	a := NewAdapter(ClientConfig{URL: wsURL(server)}, &recordingRouter{}, banner, nil)
	a.Start(context.Background())
	defer a.Stop(context.Background())

	waitLost(t, a)
	if a.State() != StateErrored {
		t.Errorf("State = %s, want errored", a.State())
	}

	// Stop after loss must not signal again.
	a.Stop(context.Background())
	if banner.lost.Load() != 1 {
		t.Errorf("lost signals = %d, want 1", banner.lost.Load())
	}
}

func TestAdapter_DialFailure(t *testing.T) {
	banner := &countingBanner{}
	a := NewAdapter(ClientConfig{URL: "ws://127.0.0.1:1/v1/ws", HandshakeTimeout: time.Second}, &recordingRouter{}, banner, slog.Default())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())

	waitLost(t, a)
	if a.State() != StateErrored {
		t.Errorf("State = %s, want errored", a.State())
	}
	if banner.opened.Load() != 0 || banner.lost.Load() != 1 {
		t.Errorf("banner opened=%d lost=%d, want 0/1", banner.opened.Load(), banner.lost.Load())
	}
}

func TestAdapter_StartTwice(t *testing.T) {
	server := mockWSServer(t, readUntilClosed)
	defer server.Close()

	a := NewAdapter(ClientConfig{URL: wsURL(server)}, &recordingRouter{}, nil, nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background())
	if err := a.Start(context.Background()); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v", err)
	}
}

// scriptedClient is a Client whose frames and end are driven by the test.
type scriptedClient struct {
	frames chan TimestampedMessage
	ended  chan *Disconnect
	stats  ClientStats
}

func newScriptedClient(stats ClientStats) *scriptedClient {
	return &scriptedClient{
		frames: make(chan TimestampedMessage, 8),
		ended:  make(chan *Disconnect, 1),
		stats:  stats,
	}
}

func (c *scriptedClient) Connect(context.Context) error     { return nil }
func (c *scriptedClient) Frames() <-chan TimestampedMessage { return c.frames }
func (c *scriptedClient) Ended() <-chan *Disconnect         { return c.ended }
func (c *scriptedClient) Stats() ClientStats                { return c.stats }
func (c *scriptedClient) Close() error                      { return nil }

func TestAdapter_StateFromDisconnect(t *testing.T) {
	tests := []struct {
		name string
		end  *Disconnect
		want State
	}{
		{"clean", &Disconnect{Clean: true, Err: errors.New("going away")}, StateClosed},
		{"unclean", &Disconnect{Err: ErrFrameTooLarge}, StateErrored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newScriptedClient(ClientStats{Frames: 9, Dropped: 3})
			banner := &countingBanner{}
			a := NewAdapter(ClientConfig{URL: "ws://feed.test/v1/ws"}, &recordingRouter{}, banner, nil)
			a.newClient = func(ClientConfig, *slog.Logger) Client { return client }
			if err := a.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer a.Stop(context.Background())

			waitFor(t, func() bool { return banner.opened.Load() == 1 }, "open")
			client.frames <- TimestampedMessage{Data: []byte(`{"event":"SELL_VOLUME","data":[]}`), ReceivedAt: time.Now()}
			client.ended <- tt.end

			waitLost(t, a)
			if a.State() != tt.want {
				t.Errorf("State = %s, want %s", a.State(), tt.want)
			}
			if !errors.Is(a.Err(), ErrTransportLost) || !errors.Is(a.Err(), tt.end.Err) {
				t.Errorf("Err = %v, want transport lost wrapping %v", a.Err(), tt.end.Err)
			}
			stats := a.Stats()
			if stats.Routed != 1 {
				t.Errorf("Routed = %d, want the frame read before the end", stats.Routed)
			}
			if stats.DroppedFrames != 3 {
				t.Errorf("DroppedFrames = %d, want 3", stats.DroppedFrames)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	states := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		StateErrored:    "errored",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
	if !StateErrored.Terminal() || StateOpen.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
