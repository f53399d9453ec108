package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/calpilot/internal/config"
	"github.com/teemow/calpilot/internal/instrumentation"
	"github.com/teemow/calpilot/internal/logging"
	"github.com/teemow/calpilot/internal/resources"
	"github.com/teemow/calpilot/internal/server"
	"github.com/teemow/calpilot/internal/tools/calendar_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// ServeOptions collects the serve flags after environment fallbacks.
type ServeOptions struct {
	Transport        string
	HTTPAddr         string
	ReadOnly         bool
	DisableStreaming bool

	// Backend and DatabasePath override the config file when set.
	Backend      string
	DatabasePath string

	Metrics MetricsConfig

	// OAuth protects the HTTP transport. Without it the server only binds
	// to loopback addresses.
	OAuth server.OAuthConfig
}

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	opts := ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server to provide calendar
management, scheduling and working-profile tools for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Safety Mode:
  Write operations (creating, moving and deleting events, applying
  rearrangements, editing the profile) are enabled by default and can be
  undone through their changesets. Use --read-only to expose only the
  query tools.

Backends:
  sqlite: events and undo history in the local database (default)
  google: events in Google Calendar; run "calpilot auth" first. The working
          profile is still kept in the local database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, &opts)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.Backend != "" {
				cfg.Backend = strings.ToLower(opts.Backend)
			}
			if opts.DatabasePath != "" {
				cfg.Database.Path = opts.DatabasePath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", transportStdio, "Transport type: stdio or streamable-http. Can also use CALPILOT_TRANSPORT env var.")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", "127.0.0.1:8080", "HTTP server address (for streamable-http transport). Non-loopback addresses require OAuth. Can also use CALPILOT_HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&opts.ReadOnly, "read-only", false, "Only register tools that do not modify the calendar or the profile. Can also use CALPILOT_READ_ONLY env var.")
	cmd.Flags().BoolVar(&opts.DisableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "Event backend: sqlite or google. Overrides the config file. Can also use CALPILOT_BACKEND env var.")
	cmd.Flags().StringVar(&opts.DatabasePath, "db", "", "SQLite database path. Overrides the config file. Can also use CALPILOT_DB env var.")

	// OAuth flags (HTTP transport only)
	cmd.Flags().StringVar(&opts.OAuth.BaseURL, "base-url", "", "Public base URL for OAuth (HTTP transport only). Can also use MCP_BASE_URL env var. Example: https://calpilot.example.com")
	cmd.Flags().StringVar(&opts.OAuth.GoogleClientID, "google-client-id", "", "Google OAuth Client ID used to authenticate MCP clients (HTTP transport only). Can also use GOOGLE_CLIENT_ID env var.")
	cmd.Flags().StringVar(&opts.OAuth.GoogleClientSecret, "google-client-secret", "", "Google OAuth Client Secret (HTTP transport only). Can also use GOOGLE_CLIENT_SECRET env var.")
	cmd.Flags().BoolVar(&opts.OAuth.AllowPublicClientRegistration, "oauth-allow-public-registration", false, "WARNING: Allow unauthenticated client registration. Can also use MCP_OAUTH_ALLOW_PUBLIC_REGISTRATION env var.")
	cmd.Flags().StringVar(&opts.OAuth.RegistrationAccessToken, "oauth-registration-token", "", "Token required for client registration when public registration is disabled. Can also use MCP_OAUTH_REGISTRATION_TOKEN env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&opts.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (HTTP transport only). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.Metrics.Addr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadServeEnvVars applies environment variables to options whose flag was
// not set explicitly.
func loadServeEnvVars(cmd *cobra.Command, opts *ServeOptions) {
	flags := cmd.Flags()
	if !flags.Changed("transport") {
		if v := os.Getenv("CALPILOT_TRANSPORT"); v != "" {
			opts.Transport = v
		}
	}
	if !flags.Changed("http-addr") {
		if v := os.Getenv("CALPILOT_HTTP_ADDR"); v != "" {
			opts.HTTPAddr = v
		}
	}
	if !flags.Changed("read-only") {
		opts.ReadOnly = envBool("CALPILOT_READ_ONLY", opts.ReadOnly)
	}
	if !flags.Changed("backend") {
		if v := os.Getenv("CALPILOT_BACKEND"); v != "" {
			opts.Backend = v
		}
	}
	if !flags.Changed("db") {
		if v := os.Getenv("CALPILOT_DB"); v != "" {
			opts.DatabasePath = v
		}
	}
	if !flags.Changed("base-url") {
		if v := os.Getenv("MCP_BASE_URL"); v != "" {
			opts.OAuth.BaseURL = v
		}
	}
	if !flags.Changed("google-client-id") {
		if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
			opts.OAuth.GoogleClientID = v
		}
	}
	if !flags.Changed("google-client-secret") {
		if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
			opts.OAuth.GoogleClientSecret = v
		}
	}
	if !flags.Changed("oauth-registration-token") {
		if v := os.Getenv("MCP_OAUTH_REGISTRATION_TOKEN"); v != "" {
			opts.OAuth.RegistrationAccessToken = v
		}
	}
	if !flags.Changed("oauth-allow-public-registration") {
		opts.OAuth.AllowPublicClientRegistration = envBool("MCP_OAUTH_ALLOW_PUBLIC_REGISTRATION", opts.OAuth.AllowPublicClientRegistration)
	}
	if !flags.Changed("metrics-enabled") {
		opts.Metrics.Enabled = envBool("METRICS_ENABLED", opts.Metrics.Enabled)
	}
	if !flags.Changed("metrics-addr") {
		if v := os.Getenv("METRICS_ADDR"); v != "" {
			opts.Metrics.Addr = v
		}
	}
}

// envBool parses a boolean variable, keeping def when unset or invalid.
func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring invalid boolean environment variable", "name", name, "value", v)
		return def
	}
	return b
}

func runServe(cfg *config.Config, opts ServeOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch opts.Transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", opts.Transport, transportStdio, transportStreamableHTTP)
	}

	logger := newLogger()
	slog.SetDefault(logger)

	instrConfig, err := instrumentationConfig(cfg, os.LookupEnv)
	if err != nil {
		return err
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig, instrumentation.WithProviderLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// The metrics port only makes sense next to a network transport.
	var metricsServer *server.MetricsServer
	if opts.Transport != transportStdio && opts.Metrics.Enabled && provider.ServesPrometheus() {
		metricsServer, err = startMetricsServer(opts.Metrics, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	b, err := openBackend(shutdownCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("error closing stores", logging.Err(err))
		}
	}()

	engine, err := b.newEngine(logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Close()

	serverContext, err := server.NewServerContext(shutdownCtx, engine,
		server.WithLogger(logger),
		server.WithReadOnly(opts.ReadOnly),
		server.WithWorkingHours(cfg.WorkingHours.Start, cfg.WorkingHours.End),
		server.WithPinger(b.db),
	)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	if provider.Enabled() {
		serverContext.SetMetrics(metrics)
		serverContext.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging))
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("calpilot", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	if opts.ReadOnly {
		logger.Info("starting server in read-only mode")
	}
	logger.Info("calendar backend ready",
		"backend", cfg.Backend,
		"database", b.db.Path(),
		"timezone", b.loc.String(),
		"full_undo", engine.Capabilities().FullUndo)

	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch opts.Transport {
	case transportStdio:
		return runStdioServer(shutdownCtx, mcpSrv)
	default:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, opts)
	}
}

// startMetricsServer starts the Prometheus listener and waits until it is
// bound.
func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", "addr", metricsServer.BoundAddr(), "path", provider.PrometheusPath())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc)
			},
		},
		{
			name: "Calendar Resources",
			register: func() error {
				return resources.RegisterCalendarResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}

// httpAuthenticator builds the OAuth guard for the HTTP transport. It
// returns nil when OAuth is not configured and the address is loopback.
func httpAuthenticator(opts ServeOptions, logger *slog.Logger) (server.Authenticator, error) {
	if !opts.OAuth.Enabled() {
		if !server.IsLoopbackAddr(opts.HTTPAddr) {
			return nil, fmt.Errorf("%w (http-addr %s)", server.ErrUnauthenticatedBind, opts.HTTPAddr)
		}
		return nil, nil
	}
	auth, err := server.NewOAuth(opts.OAuth, logger)
	if err != nil {
		return nil, err
	}
	return auth, nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, opts ServeOptions) error {
	auth, err := httpAuthenticator(opts, sc.Logger())
	if err != nil {
		return err
	}
	httpServer := server.NewHTTPServer(mcpSrv, sc, opts.DisableStreaming)
	if auth != nil {
		httpServer.SetAuthenticator(auth)
	}

	fmt.Fprintf(os.Stderr, "Streamable HTTP server starting on %s\n", opts.HTTPAddr)
	fmt.Fprintf(os.Stderr, "  HTTP endpoint: %s\n", server.MCPEndpointPath)
	fmt.Fprintf(os.Stderr, "  Health endpoints: /healthz, /readyz, /healthz/detailed\n")
	if auth != nil {
		fmt.Fprintf(os.Stderr, "  OAuth issuer: %s\n", opts.OAuth.BaseURL)
	} else {
		fmt.Fprintln(os.Stderr, "  OAuth disabled: listening on loopback only")
	}
	if opts.Metrics.Enabled {
		fmt.Fprintf(os.Stderr, "  Metrics endpoint: %s/metrics\n", opts.Metrics.Addr)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(opts.HTTPAddr); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "Shutdown signal received, stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		fmt.Fprintln(os.Stderr, "HTTP server stopped normally")
	}

	fmt.Fprintln(os.Stderr, "HTTP server gracefully stopped")
	return nil
}

// instrumentationConfig layers the config file's telemetry section over the
// instrumentation defaults and the environment over both.
func instrumentationConfig(cfg *config.Config, lookup func(string) (string, bool)) (instrumentation.Config, error) {
	c := instrumentation.DefaultConfig()
	c.ServiceVersion = version

	t := cfg.Telemetry
	if t.MetricsExporter != "" {
		c.MetricsExporter = t.MetricsExporter
	}
	if t.TracingExporter != "" {
		c.TracingExporter = t.TracingExporter
	}
	if t.OTLPEndpoint != "" {
		c.OTLPEndpoint = t.OTLPEndpoint
	}
	if t.SamplingRate > 0 {
		c.TraceSamplingRate = t.SamplingRate
	}
	c.AuditLogging.IncludeIDs = t.AuditIncludeIDs

	if err := c.ApplyEnv(lookup); err != nil {
		return c, fmt.Errorf("instrumentation environment: %w", err)
	}
	return c, nil
}
