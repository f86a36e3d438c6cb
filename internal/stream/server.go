// Package stream is the live event broadcast core: per-observer bounded
// channels, the capped observer registry, the idle-shutdown timer, and the
// HTTP server exposing the document, SSE, and WebSocket endpoints.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cliagent/liveview/internal/event"
	"github.com/gorilla/websocket"
)

const (
	DefaultHeartbeatInterval = 25 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
)

// ErrServerStarted is returned by Start when the server has already been
// started (or started and stopped).
var ErrServerStarted = errors.New("stream: server already started")

// Config controls the broadcast server. Zero values fall back to defaults.
type Config struct {
	Host              string
	Port              int // 0 lets the OS pick
	GracePeriod       time.Duration
	MaxClients        int
	QueueSize         int
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Server serves one fixed HTML document and streams broadcast events to
// every connected observer.
type Server struct {
	cfg      Config
	document []byte
	logger   *slog.Logger

	registry *Registry
	idle     *IdleTimer
	files    *fileTable
	upgrader websocket.Upgrader

	// base is the parent context of every connection; Stop cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	httpSrv *http.Server
	port    int
	stopped atomic.Bool
}

func NewServer(cfg Config, document []byte, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	logger = logger.With("component", "stream")

	s := &Server{
		cfg:      cfg,
		document: document,
		logger:   logger,
		registry: NewRegistry(cfg.MaxClients, logger),
		files:    newFileTable(),
	}
	s.idle = NewIdleTimer(cfg.GracePeriod, s.registry.Size, logger)
	s.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start binds the listener and begins serving in the background. The bound
// port is read back from the listener, so Port 0 yields the OS-assigned port.
func (s *Server) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil || s.stopped.Load() {
		return 0, ErrServerStarted
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.port = ln.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}
	s.httpSrv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()

	s.logger.Info("live viewer listening", "addr", ln.Addr().String(), "max_clients", s.cfg.MaxClients)
	return s.port, nil
}

// Stop closes the listener and every open connection. It is safe to call
// more than once and before Start.
func (s *Server) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	s.idle.Stop()
	s.cancel()

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Close(); err != nil {
		return fmt.Errorf("close http server: %w", err)
	}
	s.logger.Info("live viewer stopped")
	return nil
}

// Broadcast delivers ev to every connected observer and returns how many
// queues accepted it. It is safe to call after Stop.
func (s *Server) Broadcast(ev event.Event) int {
	return s.registry.Broadcast(ev)
}

// OnIdle sets the callback run once the last observer has been gone for the
// grace period.
func (s *Server) OnIdle(cb func()) {
	s.idle.SetCallback(cb)
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// URL returns http://host:port, or "" before Start. Wildcard bind hosts are
// reported as the loopback address.
func (s *Server) URL() string {
	port := s.Port()
	if port == 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(displayHost(s.cfg.Host), strconv.Itoa(port))
}

func (s *Server) ClientCount() int {
	return s.registry.Size()
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// RegisterFile exposes a local file under /file/<token> and returns that
// path. Registering the same path twice returns the same token.
func (s *Server) RegisterFile(path string) string {
	return "/file/" + s.files.register(path)
}

// Handler returns the server's routes. Unknown paths get 404.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDocument)
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /file/{token}", s.handleFile)
	return securityHeaders(mux)
}

// release unregisters c and arms the idle timer when it was the last one.
func (s *Server) release(c *Channel) {
	if s.registry.Unregister(c) == 0 && !s.stopped.Load() {
		s.idle.Arm()
	}
}

func (s *Server) handleDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(s.document)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		next.ServeHTTP(w, r)
	})
}

func displayHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		return "127.0.0.1"
	}
	return host
}
