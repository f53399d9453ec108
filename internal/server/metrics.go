package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/calpilot/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is where Prometheus scrapes when no address is set.
	DefaultMetricsAddr = ":9090"

	metricsReadHeaderTimeout = 10 * time.Second
	metricsWriteTimeout      = 10 * time.Second
	metricsIdleTimeout       = 60 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of both listeners.
	DefaultShutdownTimeout = 30 * time.Second
)

var (
	errNoProvider        = errors.New("instrumentation provider is required")
	errProviderDisabled  = errors.New("instrumentation provider is not enabled")
	errExporterNotScrape = errors.New("metrics exporter is not prometheus")
)

// MetricsServerConfig configures the scrape listener.
type MetricsServerConfig struct {
	Addr                    string
	InstrumentationProvider *instrumentation.Provider
	Logger                  *slog.Logger
}

// MetricsServer exposes the Prometheus scrape endpoint on its own port so
// scraping never competes with MCP sessions.
type MetricsServer struct {
	addr   string
	path   string
	scrape http.Handler
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	bound      net.Addr
}

// NewMetricsServer validates that the provider exports to Prometheus.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	p := config.InstrumentationProvider
	switch {
	case p == nil:
		return nil, errNoProvider
	case !p.Enabled():
		return nil, errProviderDisabled
	case !p.ServesPrometheus():
		return nil, errExporterNotScrape
	}

	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsServer{addr: addr, path: p.PrometheusPath(), scrape: p.PrometheusHandler(), logger: logger}, nil
}

func (s *MetricsServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, s.scrape)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
	return mux
}

// Start serves until Shutdown. It blocks.
func (s *MetricsServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal closes ready once the listener is bound so callers
// can tell a bad address from a slow start.
func (s *MetricsServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
		WriteTimeout:      metricsWriteTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.bound = ln.Addr()
	s.mu.Unlock()
	if ready != nil {
		close(ready)
	}

	s.logger.Info("metrics listener started", "addr", ln.Addr().String(), "path", s.path)
	return srv.Serve(ln)
}

// Shutdown stops the listener. It is a no-op before Start.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("metrics listener stopping")
	return srv.Shutdown(ctx)
}

// Addr returns the configured address.
func (s *MetricsServer) Addr() string {
	return s.addr
}

// BoundAddr returns the listener address, or nil before Start.
func (s *MetricsServer) BoundAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}
