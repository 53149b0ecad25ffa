// Package server exposes datasets over HTTP and websocket.
//
// Routes:
//
//	GET /gem_chart?type=<kind>     raw, 24h and 7d lines as [{label, data}]
//	GET /series/{kind}/{series}    one series as [[ts_ms, value], ...]
//	GET /summary/{kind}            trailing window statistics
//	GET /health                    refresh status of every dataset
//	GET /ws/{kind}                 chart on connect and after every cycle
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/gemrate/config"
	"github.com/xtxerr/gemrate/internal/dataset"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/logging"
)

var log = logging.Component("server")

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Registry serves the datasets (required).
	Registry *dataset.Registry

	// Listen is the address to listen on (e.g., "0.0.0.0:8080").
	Listen string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Stream settings. StreamConnectLimit is per IP per minute.
	StreamEnabled      bool
	StreamWriteWait    time.Duration
	StreamPongWait     time.Duration
	StreamConnectLimit int
}

// DefaultConfig returns the default server configuration without a
// registry.
func DefaultConfig() Config {
	return Config{
		Listen:             config.DefaultListenAddress,
		ReadTimeout:        config.DefaultReadTimeout,
		WriteTimeout:       config.DefaultWriteTimeout,
		ShutdownTimeout:    config.DefaultShutdownTimeout,
		StreamEnabled:      true,
		StreamWriteWait:    config.DefaultStreamWriteWait,
		StreamPongWait:     config.DefaultStreamPongWait,
		StreamConnectLimit: config.DefaultStreamConnectLimit,
	}
}

// =============================================================================
// Server
// =============================================================================

// Server is the HTTP delivery layer.
type Server struct {
	cfg Config
	reg *dataset.Registry

	mux      *http.ServeMux
	http     *http.Server
	upgrader websocket.Upgrader
	limiter  *RateLimiter

	// charts collapses concurrent renders of the same kind.
	charts singleflight.Group

	requestID atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	streams  sync.WaitGroup
	shutdown chan struct{}
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.NewMissingField("registry")
	}

	// Apply defaults
	def := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.StreamWriteWait <= 0 {
		cfg.StreamWriteWait = def.StreamWriteWait
	}
	if cfg.StreamPongWait <= 0 {
		cfg.StreamPongWait = def.StreamPongWait
	}

	s := &Server{
		cfg:      cfg,
		reg:      cfg.Registry,
		mux:      http.NewServeMux(),
		limiter:  NewRateLimiter(cfg.StreamConnectLimit, time.Minute),
		shutdown: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // charts are public
			},
		},
	}

	s.mux.HandleFunc("GET /gem_chart", s.handleChart)
	s.mux.HandleFunc("GET /series/{kind}/{series}", s.handleSeries)
	s.mux.HandleFunc("GET /summary/{kind}", s.handleSummary)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if cfg.StreamEnabled {
		s.mux.HandleFunc("GET /ws/{kind}", s.handleStream)
	}

	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.requestID.Add(1)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		ctx = logging.ContextWithRemote(ctx, r.RemoteAddr)
		r = r.WithContext(ctx)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)

		logging.WithContext(ctx).Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// Run listens on the configured address and serves until Shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Info("listening", "address", ln.Addr().String())

	err := s.http.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests, closes streams and waits for
// in-flight requests up to the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down")

	s.mu.Lock()
	select {
	case <-s.shutdown:
		s.mu.Unlock()
		return errors.ErrClosed
	default:
		close(s.shutdown)
	}
	s.mu.Unlock()
	s.limiter.Stop()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	s.streams.Wait()

	log.Info("shutdown complete")
	return err
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
