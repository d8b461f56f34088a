package devfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// EventSocketOpened is sent to every client right after the upgrade.
const EventSocketOpened = "SOCKET_OPENED"

// Frame is one push message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// hub owns the set of connected clients. Only run touches the clients map.
type hub struct {
	logger *slog.Logger

	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	drop       chan struct{}
	done       chan struct{}

	connected atomic.Int64
	sent      atomic.Int64
	pruned    atomic.Int64
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		logger:     logger,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		drop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// run is the hub loop. It closes every client when ctx is done.
func (h *hub) run(ctx context.Context) {
	defer close(h.done)
	opened, _ := json.Marshal(Frame{Event: EventSocketOpened})

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.connected.Store(0)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Store(int64(len(h.clients)))
			c.send <- opened

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.connected.Store(int64(len(h.clients)))
			}

		case <-h.drop:
			// Close the sockets without a close frame; readers see an
			// abnormal closure and unregister themselves.
			for c := range h.clients {
				c.conn.Close()
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.sent.Add(1)
				default:
					// Slow client; drop it rather than block the hub.
					delete(h.clients, c)
					close(c.send)
					h.pruned.Add(1)
					h.logger.Warn("pruned slow push client", "remote", c.remote)
				}
			}
			h.connected.Store(int64(len(h.clients)))
		}
	}
}

// publish queues a frame for every client. It drops the frame if the hub queue
// is full or ctx is done.
func (h *hub) publish(ctx context.Context, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("marshal frame", "event", f.Event, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	case <-ctx.Done():
	default:
		h.logger.Warn("broadcast queue full, dropping frame", "event", f.Event)
	}
}

// dropAll closes every client connection abruptly.
func (h *hub) dropAll(ctx context.Context) {
	select {
	case h.drop <- struct{}{}:
	case <-h.done:
	case <-ctx.Done():
	}
}
