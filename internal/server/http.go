package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// MCPEndpointPath is where the streamable HTTP transport is mounted.
const MCPEndpointPath = "/mcp"

// routes bounds the path label of http_requests_total.
var routes = map[string]bool{
	MCPEndpointPath:                 true,
	"/healthz":                      true,
	"/readyz":                       true,
	"/healthz/detailed":             true,
	ProtectedResourceMetadataPath:   true,
	AuthorizationServerMetadataPath: true,
	RegisterPath:                    true,
	AuthorizePath:                   true,
	TokenPath:                       true,
	CallbackPath:                    true,
	RevokePath:                      true,
	IntrospectPath:                  true,
}

// HTTPServer serves the MCP streamable HTTP transport and the health probes.
// Without an Authenticator it only listens on loopback addresses.
type HTTPServer struct {
	mcpServer        *mcpserver.MCPServer
	serverContext    *ServerContext
	health           *HealthChecker
	disableStreaming bool
	auth             Authenticator

	mu         sync.Mutex
	httpServer *http.Server
}

// NewHTTPServer creates the HTTP transport for mcpServer.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, sc *ServerContext, disableStreaming bool) *HTTPServer {
	return &HTTPServer{
		mcpServer:        mcpServer,
		serverContext:    sc,
		health:           NewHealthChecker(sc),
		disableStreaming: disableStreaming,
	}
}

// SetAuthenticator guards the MCP endpoint with auth. Call it before
// Handler or Start.
func (s *HTTPServer) SetAuthenticator(auth Authenticator) {
	s.auth = auth
}

// HealthChecker returns the probe state, e.g. to mark the server not ready
// while draining.
func (s *HTTPServer) HealthChecker() *HealthChecker {
	return s.health
}

// Handler returns the routed handler with request metrics applied.
func (s *HTTPServer) Handler() http.Handler {
	opts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath(MCPEndpointPath)}
	if s.disableStreaming {
		opts = append(opts, mcpserver.WithDisableStreaming(true))
	}

	var mcpHandler http.Handler = mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...)

	mux := http.NewServeMux()
	if s.auth != nil {
		s.auth.RegisterEndpoints(mux)
		mcpHandler = s.auth.ValidateToken(mcpHandler)
	}
	mux.Handle(MCPEndpointPath, mcpHandler)
	s.health.RegisterHealthEndpoints(mux)
	return s.instrument(mux)
}

// instrument records one http_requests_total sample per request. Unknown
// paths share the "other" label.
func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		metrics := s.serverContext.Metrics()
		if metrics == nil {
			return
		}
		path := r.URL.Path
		if !routes[path] {
			path = "other"
		}
		metrics.RecordHTTPRequest(r.Context(), r.Method, path, m.Code, m.Duration)
	})
}

// Start listens on addr and blocks until Shutdown. It fails with
// ErrUnauthenticatedBind when no Authenticator is set and addr is not a
// loopback address.
func (s *HTTPServer) Start(addr string) error {
	if s.auth == nil && !IsLoopbackAddr(addr) {
		return ErrUnauthenticatedBind
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.serverContext.Logger().Info("starting MCP HTTP server", "addr", addr, "endpoint", MCPEndpointPath, "oauth", s.auth != nil)
	return srv.ListenAndServe()
}

// Shutdown marks the server not ready and drains open requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.auth != nil {
		defer s.auth.Stop()
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
