package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

const shutdownTimeout = 5 * time.Second

// HealthFunc reports nil while the server can serve requests
type HealthFunc func() error

// MetricsServer serves the operational HTTP endpoints next to the binary protocol:
//
//	GET /metrics  Prometheus text format
//	GET /health   200 "ok" or 503 with the reason
type MetricsServer struct {
	endpoint     string
	writeMetrics func(w io.Writer)
	health       HealthFunc
	debug        bool

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewMetricsServer creates a server for endpoint. writeMetrics writes all
// metrics in Prometheus text format, health may be nil.
func NewMetricsServer(endpoint string, writeMetrics func(w io.Writer), health HealthFunc, logLevel string) *MetricsServer {
	return &MetricsServer{
		endpoint:     endpoint,
		writeMetrics: writeMetrics,
		health:       health,
		debug:        logLevel == "debug",
	}
}

// Handler returns the routes of the server
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register handlers
	if s.debug {
		mux.HandleFunc("GET /metrics", loggerMiddleware(s.handleMetrics))
		mux.HandleFunc("GET /health", loggerMiddleware(s.handleHealth))
	} else {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
		mux.HandleFunc("GET /health", s.handleHealth)
	}
	return mux
}

// Listen serves HTTP on the endpoint until Close is called
func (s *MetricsServer) Listen() error {
	listener, err := net.Listen("tcp", s.endpoint)
	if err != nil {
		return errors.Wrap(err, "failed to create metrics listener")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return listener.Close()
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	Logger.Infof("Starting HTTP metrics server on %s", listener.Addr())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the server down, waiting a few seconds for running requests
func (s *MetricsServer) Close() error {
	s.mu.Lock()
	s.closed = true
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *MetricsServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	s.writeMetrics(w)
}

func (s *MetricsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.health != nil {
		if err := s.health(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	_, _ = io.WriteString(w, "ok")
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
