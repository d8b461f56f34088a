package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrFrameTooLarge   = errors.New("push frame exceeds size limit")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("adapter already started")
	ErrTransportLost   = errors.New("push transport lost")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., ws://localhost:6696/v1/ws)
	UserAgent        string        // Sent on the upgrade request when set
	HandshakeTimeout time.Duration // Dial and upgrade deadline
	PingInterval     time.Duration // Interval between keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for control frames
	BufferSize       int           // Frames buffered ahead of the adapter
	MaxFrameBytes    int64         // Larger frames end the connection
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
		MaxFrameBytes:    1 << 20,
	}
}

// withDefaults fills zero fields from DefaultClientConfig.
func (c ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	return c
}

// State is the push channel lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// Banner receives push channel lifecycle notifications.
type Banner interface {
	ConnectionOpened()
	ConnectionLost()
}

// AdapterStats contains push channel counters.
type AdapterStats struct {
	State         string `json:"state"`
	Frames        int64  `json:"frames"`
	Routed        int64  `json:"routed"`
	ControlFrames int64  `json:"control_frames"`
	DecodeErrors  int64  `json:"decode_errors"`
	RouteErrors   int64  `json:"route_errors"`
	DroppedFrames int64  `json:"dropped_frames"` // Discarded by the client before decoding
}
