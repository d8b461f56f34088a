package devfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rickgao/tradewatch/internal/api"
	"github.com/rickgao/tradewatch/internal/model"
)

var (
	ErrAlreadyStarted = errors.New("devfeed already started")
	ErrNotStarted     = errors.New("devfeed not started")
)

// Default settings.
const (
	DefaultAddr     = ":6696"
	DefaultBulkSize = 25
)

// Config holds server settings.
type Config struct {
	Addr          string        // Listen address; empty serves only through Handler
	TradeInterval time.Duration // Place a random trade this often; 0 disables
	BulkSize      int           // Trades placed by POST /v1/bulktrades
	Seed          uint64
}

// Stats contains server counters.
type Stats struct {
	Trades     int64 `json:"trades"`
	Clients    int64 `json:"clients"`
	FramesSent int64 `json:"frames_sent"`
	Pruned     int64 `json:"pruned"`
}

// Server serves the synthetic REST and push endpoints.
type Server struct {
	cfg    Config
	logger *slog.Logger

	gen      *Generator
	hub      *hub
	engine   *gin.Engine
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener

	// Lifecycle
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a server. Call Start before serving.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = DefaultBulkSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "devfeed")

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		gen:    NewGenerator(cfg.Seed),
		hub:    newHub(logger),
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "trades": s.gen.Total()})
	})

	v1 := s.engine.Group("/v1")
	for _, cat := range model.Categories() {
		path, err := api.Endpoint(cat)
		if err != nil {
			continue
		}
		v1.GET(path, s.getCategory(cat))
	}
	v1.POST(api.PathMockTrade, s.postMockTrade)
	v1.POST(api.PathBulkTrades, s.postBulkTrades)
	v1.GET("/ws", s.handleWebSocket)
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Handler returns the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the listen address once started, or "" without a listener.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start runs the hub, the optional trade ticker and the optional listener.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	if s.cfg.Addr != "" {
		ln, err := net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
		}
		s.listener = ln
		s.httpServer = &http.Server{
			Handler:           s.engine,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.run(s.ctx)
	}()

	if s.cfg.TradeInterval > 0 {
		s.wg.Add(1)
		go s.tradeLoop()
	}

	if s.httpServer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("devfeed server error", "error", err)
			}
		}()
	}

	s.logger.Info("devfeed started",
		"addr", s.cfg.Addr,
		"trade_interval", s.cfg.TradeInterval,
		"bulk_size", s.cfg.BulkSize,
	)
	return nil
}

// Stop shuts down the listener and closes every push client.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.mu.Unlock()

	s.logger.Info("stopping devfeed")

	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(ctx)
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("devfeed stopped")
	case <-ctx.Done():
		s.logger.Warn("devfeed stop timed out")
		return ctx.Err()
	}
	return shutdownErr
}

// Stats returns current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Trades:     s.gen.Total(),
		Clients:    s.hub.connected.Load(),
		FramesSent: s.hub.sent.Load(),
		Pruned:     s.hub.pruned.Load(),
	}
}

// PlaceTrade places one random trade and broadcasts it with every push-driven
// aggregate.
func (s *Server) PlaceTrade(ctx context.Context) model.Trade {
	t := s.gen.Place()
	s.publishTrade(ctx, t)
	return t
}

// PlaceBulk places n trades.
func (s *Server) PlaceBulk(ctx context.Context, n int) int {
	for i := 0; i < n; i++ {
		s.PlaceTrade(ctx)
	}
	return n
}

// DropClients closes every push connection without a close frame.
func (s *Server) DropClients(ctx context.Context) {
	s.hub.dropAll(ctx)
}

func (s *Server) publishTrade(ctx context.Context, t model.Trade) {
	s.hub.publish(ctx, Frame{Event: model.LatestTrades.Event(), Data: t})
	for _, cat := range model.Categories() {
		if cat.Incremental() || cat.PollOnly() {
			continue
		}
		s.hub.publish(ctx, Frame{Event: cat.Event(), Data: s.gen.Payload(cat)})
	}
}

func (s *Server) tradeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TradeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.PlaceTrade(s.ctx)
		}
	}
}

func (s *Server) getCategory(cat model.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.JSON(http.StatusOK, gin.H{"data": s.gen.Payload(cat)})
	}
}

func (s *Server) postMockTrade(c *gin.Context) {
	t := s.PlaceTrade(c.Request.Context())
	c.JSON(http.StatusOK, Frame{Event: model.LatestTrades.Event(), Data: t})
}

func (s *Server) postBulkTrades(c *gin.Context) {
	n := s.PlaceBulk(c.Request.Context(), s.cfg.BulkSize)
	c.JSON(http.StatusOK, n)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: c.ClientIP(),
	}

	select {
	case s.hub.register <- cl:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}
