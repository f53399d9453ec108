package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/calpilot/internal/assistant"
	"github.com/teemow/calpilot/internal/instrumentation"
	"github.com/teemow/calpilot/internal/scheduling"
)

// Pinger checks that the calendar backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerContext holds the context for the MCP server
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	engine      *assistant.Engine
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	pinger      Pinger
	readOnly    bool
	windowStart string
	windowEnd   string
	mu          sync.RWMutex
	shutdown    bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithLogger sets the logger handed to tool handlers.
func WithLogger(l *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = l }
}

// WithReadOnly hides every tool that changes the calendar or persona.
func WithReadOnly(readOnly bool) Option {
	return func(sc *ServerContext) { sc.readOnly = readOnly }
}

// WithWorkingHours sets the default HH:MM window for free-slot searches.
func WithWorkingHours(start, end string) Option {
	return func(sc *ServerContext) {
		sc.windowStart, sc.windowEnd = start, end
	}
}

// WithPinger adds a backend check to the readiness probe.
func WithPinger(p Pinger) Option {
	return func(sc *ServerContext) { sc.pinger = p }
}

// NewServerContext creates a new server context around engine. The caller
// keeps ownership of the engine.
func NewServerContext(ctx context.Context, engine *assistant.Engine, opts ...Option) (*ServerContext, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		engine:      engine,
		logger:      slog.Default(),
		windowStart: scheduling.DefaultWindowStart,
		windowEnd:   scheduling.DefaultWindowEnd,
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Engine returns the scheduling engine.
func (sc *ServerContext) Engine() *assistant.Engine {
	return sc.engine
}

// Logger returns the base logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// ReadOnly reports whether mutating tools are disabled.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// WorkingHours returns the default free-slot window.
func (sc *ServerContext) WorkingHours() (start, end string) {
	return sc.windowStart, sc.windowEnd
}

// SetMetrics sets the tool metrics recorder.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// Metrics returns the tool metrics recorder, or nil when not configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger for tool invocations.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// AuditLogger returns the audit logger, or nil when not configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Ping checks the backend. Without a Pinger it always succeeds.
func (sc *ServerContext) Ping(ctx context.Context) error {
	if sc.pinger == nil {
		return nil
	}
	return sc.pinger.Ping(ctx)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context. The engine is left running.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
