package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	mcpoauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers/google"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"

	calgoogle "github.com/teemow/calpilot/internal/google"
)

// OAuth endpoint paths.
const (
	ProtectedResourceMetadataPath   = "/.well-known/oauth-protected-resource"
	AuthorizationServerMetadataPath = "/.well-known/oauth-authorization-server"
	RegisterPath                    = "/oauth/register"
	AuthorizePath                   = "/oauth/authorize"
	TokenPath                       = "/oauth/token"
	CallbackPath                    = "/oauth/callback"
	RevokePath                      = "/oauth/revoke"
	IntrospectPath                  = "/oauth/introspect"
)

// ErrUnauthenticatedBind is returned when the HTTP transport would expose
// the MCP endpoint without authentication on a non-loopback address.
var ErrUnauthenticatedBind = errors.New("refusing to serve unauthenticated MCP endpoint on a non-loopback address; configure OAuth or bind to 127.0.0.1")

// Authenticator guards the MCP endpoint and serves the endpoints clients
// use to obtain tokens.
type Authenticator interface {
	ValidateToken(next http.Handler) http.Handler
	RegisterEndpoints(mux *http.ServeMux)
	Stop()
}

// OAuthConfig configures the OAuth 2.1 authorization server in front of
// the HTTP transport. Google is the identity provider.
type OAuthConfig struct {
	// BaseURL is the public URL of this server and the token issuer.
	BaseURL string

	GoogleClientID     string
	GoogleClientSecret string

	// AllowPublicClientRegistration lets any client register without
	// RegistrationAccessToken.
	AllowPublicClientRegistration bool
	RegistrationAccessToken       string
}

// Enabled reports whether any OAuth setting was provided.
func (c OAuthConfig) Enabled() bool {
	return c.GoogleClientID != "" || c.GoogleClientSecret != "" || c.BaseURL != ""
}

// Validate checks that the configuration can start an authorization server.
func (c OAuthConfig) Validate() error {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return errors.New("oauth: google client id and secret are required")
	}
	if err := validateHTTPSRequirement(c.BaseURL); err != nil {
		return fmt.Errorf("oauth: %w", err)
	}
	if !c.AllowPublicClientRegistration && c.RegistrationAccessToken == "" {
		return errors.New("oauth: a registration token is required unless public client registration is allowed")
	}
	return nil
}

// OAuth authenticates MCP requests with tokens issued by an in-process
// authorization server. Clients, flows and tokens live in memory and are
// lost on restart.
type OAuth struct {
	handler *mcpoauth.Handler
	stop    func()
}

// NewOAuth creates the authorization server for cfg.
func NewOAuth(cfg OAuthConfig, logger *slog.Logger) (*OAuth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	provider, err := google.NewProvider(&google.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  baseURL + CallbackPath,
		Scopes:       calgoogle.CalendarScopes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google provider: %w", err)
	}

	store := memory.New()
	srv, err := mcpoauth.NewServer(provider, store, store, store, &oauthserver.Config{
		Issuer:                        baseURL,
		AllowPublicClientRegistration: cfg.AllowPublicClientRegistration,
		RegistrationAccessToken:       cfg.RegistrationAccessToken,
	}, logger)
	if err != nil {
		store.Stop()
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}

	return &OAuth{handler: mcpoauth.NewHandler(srv, logger), stop: store.Stop}, nil
}

// ValidateToken rejects requests without a valid bearer token.
func (o *OAuth) ValidateToken(next http.Handler) http.Handler {
	return o.handler.ValidateToken(next)
}

// RegisterEndpoints mounts the metadata, registration and token endpoints.
func (o *OAuth) RegisterEndpoints(mux *http.ServeMux) {
	mux.HandleFunc(ProtectedResourceMetadataPath, o.handler.ServeProtectedResourceMetadata)
	mux.HandleFunc(AuthorizationServerMetadataPath, o.handler.ServeAuthorizationServerMetadata)
	mux.HandleFunc(RegisterPath, o.handler.ServeClientRegistration)
	mux.HandleFunc(AuthorizePath, o.handler.ServeAuthorization)
	mux.HandleFunc(TokenPath, o.handler.ServeToken)
	mux.HandleFunc(CallbackPath, o.handler.ServeCallback)
	mux.HandleFunc(RevokePath, o.handler.ServeTokenRevocation)
	mux.HandleFunc(IntrospectPath, o.handler.ServeTokenIntrospection)
}

// Stop ends the store's background cleanup.
func (o *OAuth) Stop() {
	o.stop()
}

// validateHTTPSRequirement allows plain HTTP only for loopback hosts.
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return errors.New("base URL cannot be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopbackHost(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("OAuth 2.1 requires HTTPS (got: %s); use HTTPS or localhost for development", baseURL)
	default:
		return fmt.Errorf("invalid URL scheme %q: must be http (localhost only) or https", u.Scheme)
	}
}

// IsLoopbackAddr reports whether a listen address only accepts local
// connections. An empty host listens on every interface.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	return isLoopbackHost(host)
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
