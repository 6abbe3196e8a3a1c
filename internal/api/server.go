// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves the HTTP and websocket surface over the bridge and
// traffic-control managers.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"grimm.is/tcbridge/internal/brand"
	"grimm.is/tcbridge/internal/bridge"
	"grimm.is/tcbridge/internal/config"
	"grimm.is/tcbridge/internal/iface"
	"grimm.is/tcbridge/internal/logging"
	"grimm.is/tcbridge/internal/metrics"
	"grimm.is/tcbridge/internal/qos"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// ServerConfig holds HTTP server security settings
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration // Body read limit
	WriteTimeout      time.Duration // Response timeout
	IdleTimeout       time.Duration // Keep-alive timeout
	MaxHeaderBytes    int           // Header size limit
	MaxBodyBytes      int64         // Request body size limit
}

// DefaultServerConfig returns secure default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second, // bridge creation runs several commands
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      64 << 10,
	}
}

// BridgeService is what the API needs from the bridge manager.
type BridgeService interface {
	Create(ctx context.Context, ifaces []string) error
	Destroy(ctx context.Context)
	Status(ctx context.Context) bridge.Snapshot
}

// ShaperService is what the API needs from the qos manager.
type ShaperService interface {
	ApplyRaw(ctx context.Context, raw qos.RawRule) (qos.Summary, error)
	Clear(ctx context.Context, ifaces []string) (qos.Summary, error)
	Status(ctx context.Context, dev string) (qos.TcStatus, error)
}

// InterfaceLister enumerates bridgeable host interfaces.
type InterfaceLister interface {
	List() ([]iface.Info, error)
}

// Options configures a Server.
type Options struct {
	Bridge     BridgeService
	Shaper     ShaperService
	Interfaces InterfaceLister
	TCDefaults config.TCDefaults
	Metrics    *metrics.Metrics
	// ServeMetrics exposes /metrics when Metrics is set.
	ServeMetrics bool
	Logger       *logging.Logger
	Config       *ServerConfig
	Version      string
}

// Server handles API requests.
type Server struct {
	bridge     BridgeService
	shaper     ShaperService
	interfaces InterfaceLister
	tcDefaults config.TCDefaults
	metrics    *metrics.Metrics
	logger     *logging.Logger
	cfg        *ServerConfig
	version    string

	ws      *WSManager
	handler http.Handler

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a Server and builds its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("api")
	}
	if opts.Config == nil {
		opts.Config = DefaultServerConfig()
	}
	if opts.Version == "" {
		opts.Version = brand.Version
	}

	s := &Server{
		bridge:     opts.Bridge,
		shaper:     opts.Shaper,
		interfaces: opts.Interfaces,
		tcDefaults: opts.TCDefaults,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		cfg:        opts.Config,
		version:    opts.Version,
	}
	s.ws = NewWSManager(s.bridge.Status, opts.Metrics, opts.Logger.WithComponent("ws"))

	router := mux.NewRouter()

	router.HandleFunc("/api/interfaces", s.handleInterfaces).Methods("GET")

	router.HandleFunc("/api/bridge/status", s.handleBridgeStatus).Methods("GET")
	router.HandleFunc("/api/bridge/create", s.handleBridgeCreate).Methods("POST")
	router.HandleFunc("/api/bridge/destroy", s.handleBridgeDestroy).Methods("POST")

	router.HandleFunc("/api/tc/apply", s.handleTCApply).Methods("POST")
	router.HandleFunc("/api/tc/clear", s.handleTCClear).Methods("POST")
	router.HandleFunc("/api/tc/status/{interface}", s.handleTCStatus).Methods("GET")
	router.HandleFunc("/api/tc/defaults", s.handleTCDefaults).Methods("GET")

	router.Handle("/api/ws", s.ws).Methods("GET")

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if opts.ServeMetrics && opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, ErrNotFound)
	})

	var h http.Handler = router
	h = maxBodyMiddleware(s.cfg.MaxBodyBytes)(h)
	h = loggingMiddleware(h)
	h = requestIDMiddleware(h)
	s.handler = h
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Broadcaster returns the push channel for the status monitor.
func (s *Server) Broadcaster() *WSManager {
	return s.ws
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	logging.APILog("info", "API server listening on %s", l.Addr())
	err := srv.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Start listens on addr and serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Shutdown disconnects observers and stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ws.Close()
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// RequestID returns the correlation ID attached by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		w.Header().Set("Server", brand.UserAgent(brand.Version))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// loggingMiddleware logs all API requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		// Scrapes and health probes are too frequent to be useful in the log.
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		level := "info"
		if wrapped.statusCode >= 400 {
			level = "warn"
		}
		if wrapped.statusCode >= 500 {
			level = "error"
		}
		logging.APILog(level, "%s %s %d %v id=%s", r.Method, r.URL.Path, wrapped.statusCode,
			duration.Round(time.Millisecond), RequestID(r.Context()))
	})
}

// maxBodyMiddleware limits the size of request bodies to prevent memory exhaustion.
func maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip body limit for GET/HEAD/OPTIONS
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			// Check Content-Length header first (fast path)
			if r.ContentLength > maxBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Implement http.Hijacker for websocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		rw.statusCode = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijack not supported")
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
