// Package web provides the kiosk's reporting interface: a dashboard, the
// status feed, the CSV export, a live websocket feed and daemon health.
// Handlers only read the session ledger.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/sweeney/fuel-kiosk/internal/status"
	"github.com/sweeney/fuel-kiosk/internal/telemetry"
)

// MaxRecent bounds the ?n= override on /data.
const MaxRecent = 100

// Options tunes the server. Zero values pick defaults.
type Options struct {
	Recent       int           // default window for /data
	PingInterval time.Duration // websocket keepalive
}

// Server serves the reporting interface over HTTP.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	store      *telemetry.Store
	tracker    *status.Tracker
	log        *zap.Logger
	recent     int
	ping       time.Duration
	upgrader   websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a Server that reads the ledger from store and daemon health
// from tracker.
func New(addr string, store *telemetry.Store, tracker *status.Tracker, opts Options, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Recent <= 0 {
		opts.Recent = telemetry.DefaultRecent
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}

	gz, err := gzhttp.NewWrapper(gzhttp.MinSize(512))
	if err != nil {
		return nil, fmt.Errorf("gzip wrapper: %w", err)
	}

	s := &Server{
		store:   store,
		tracker: tracker,
		log:     log,
		recent:  opts.Recent,
		ping:    opts.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from this host; other origins are refused.
		},
		closing: make(chan struct{}),
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	engine.GET("/", s.handleIndex)
	engine.GET("/index.html", s.handleIndex)
	engine.GET("/data", s.handleData)
	engine.GET("/csv", gin.WrapH(gz(http.HandlerFunc(s.handleCSV))))
	engine.GET("/ws", s.handleWS)
	engine.GET("/health", s.handleHealth)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown closes live websocket feeds and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request at debug level, and at warn for
// client and server errors.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			s.log.Warn("http request", fields...)
			return
		}
		s.log.Debug("http request", fields...)
	}
}

// recentWindow resolves ?n=, falling back to the configured window.
func (s *Server) recentWindow(c *gin.Context) (int, error) {
	raw, ok := c.GetQuery("n")
	if !ok {
		return s.recent, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxRecent {
		return 0, fmt.Errorf("n must be an integer in 1..%d", MaxRecent)
	}
	return n, nil
}

func (s *Server) handleIndex(c *gin.Context) {
	feed := BuildFeed(s.store.Snapshot(s.recent))
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := renderHTML(c.Writer, feed, s.tracker.Snapshot()); err != nil {
		s.log.Warn("render dashboard", zap.Error(err))
	}
}

func (s *Server) handleData(c *gin.Context) {
	n, err := s.recentWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, BuildFeed(s.store.Snapshot(n)))
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=fuel_log.csv")
	if err := WriteCSV(w, s.store.FullHistory()); err != nil {
		s.log.Warn("write csv", zap.Error(err))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}

// handleWS pushes the status feed on connect and after every ledger change.
func (s *Server) handleWS(c *gin.Context) {
	n, err := s.recentWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader: we expect nothing from the client but must process control
	// frames and notice when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.ping))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * s.ping))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()

	for {
		changed := s.store.Changed()
		if err := s.writeJSON(conn, BuildFeed(s.store.Snapshot(n))); err != nil {
			s.log.Debug("websocket write failed", zap.Error(err))
			return
		}
		if !s.awaitChange(conn, changed, ticker.C, gone) {
			return
		}
	}
}

// awaitChange blocks until changed fires, pinging the client meanwhile.
// It returns false when the feed should stop.
func (s *Server) awaitChange(conn *websocket.Conn, changed <-chan struct{}, tick <-chan time.Time, gone <-chan struct{}) bool {
	for {
		select {
		case <-changed:
			return true
		case <-tick:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return false
			}
		case <-gone:
			return false
		case <-s.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return false
		}
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	if err := conn.WriteJSON(v); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
