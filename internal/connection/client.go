package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one push connection. It is used once: after Ended fires or Close
// is called it cannot be reconnected.
type Client interface {
	// Connect dials the push endpoint and starts reading frames.
	Connect(ctx context.Context) error

	// Frames delivers raw frames in arrival order.
	Frames() <-chan TimestampedMessage

	// Ended receives exactly one Disconnect when the server side ends the
	// connection. It never fires after Close.
	Ended() <-chan *Disconnect

	// Stats returns frame counters for this connection.
	Stats() ClientStats

	// Close sends a normal close frame and releases the socket.
	Close() error
}

// Disconnect tells why the server side of a push connection went away.
type Disconnect struct {
	Clean bool // Server sent a normal or going-away close frame
	Err   error
}

func (d *Disconnect) Error() string {
	if d.Clean {
		return fmt.Sprintf("push closed by server: %v", d.Err)
	}
	return fmt.Sprintf("push connection failed: %v", d.Err)
}

func (d *Disconnect) Unwrap() error {
	return d.Err
}

// classify turns a read or liveness error into a Disconnect.
func classify(err error) *Disconnect {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return &Disconnect{Clean: true, Err: err}
	case errors.Is(err, websocket.ErrReadLimit):
		return &Disconnect{Err: fmt.Errorf("%w: %w", ErrFrameTooLarge, err)}
	default:
		return &Disconnect{Err: err}
	}
}

// ClientStats counts the frames one connection has seen.
type ClientStats struct {
	Frames  int64 // Frames read off the socket
	Dropped int64 // Frames discarded because the reader fell behind
}

type wsClient struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	frames chan TimestampedMessage
	ended  chan *Disconnect
	done   chan struct{}

	endOnce sync.Once
	mu      sync.Mutex
	closed  bool

	// Unix nanos of the last inbound frame, ping or pong.
	lastSeen atomic.Int64
	read     atomic.Int64
	dropped  atomic.Int64
}

// NewClient creates a push client for cfg.URL.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &wsClient{
		cfg:    cfg,
		logger: logger,
		frames: make(chan TimestampedMessage, cfg.BufferSize),
		ended:  make(chan *Disconnect, 1),
		done:   make(chan struct{}),
	}
}

func (c *wsClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrAlreadyClosed
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}
	conn.SetReadLimit(c.cfg.MaxFrameBytes)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.touch()

	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop(conn)
	go c.livenessLoop(conn)

	c.logger.Debug("push socket connected", "url", c.cfg.URL)
	return nil
}

func (c *wsClient) Frames() <-chan TimestampedMessage {
	return c.frames
}

func (c *wsClient) Ended() <-chan *Disconnect {
	return c.ended
}

func (c *wsClient) Stats() ClientStats {
	return ClientStats{
		Frames:  c.read.Load(),
		Dropped: c.dropped.Load(),
	}
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout),
	)
	return conn.Close()
}

func (c *wsClient) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// end reports the first server-side failure unless Close already ran.
func (c *wsClient) end(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	c.endOnce.Do(func() {
		c.ended <- classify(err)
	})
}

func (c *wsClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.end(err)
			return
		}
		c.touch()
		c.read.Add(1)

		select {
		case c.frames <- TimestampedMessage{Data: data, ReceivedAt: time.Now()}:
		case <-c.done:
			return
		default:
			n := c.dropped.Add(1)
			c.logger.Warn("push frame dropped, reader behind", "dropped", n, "size", len(data))
		}
	}
}

// livenessLoop pings every PingInterval and ends the connection once nothing
// has arrived for PingTimeout.
func (c *wsClient) livenessLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("push ping failed", "error", err)
			}

			idle := time.Since(time.Unix(0, c.lastSeen.Load()))
			if idle > c.cfg.PingTimeout {
				c.logger.Warn("push connection stale", "idle", idle, "timeout", c.cfg.PingTimeout)
				c.end(ErrStaleConnection)
				conn.Close()
				return
			}
		}
	}
}
