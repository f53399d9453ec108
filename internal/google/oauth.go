package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// EnvClientID and EnvClientSecret name the OAuth client credentials.
	EnvClientID     = "CALPILOT_GOOGLE_CLIENT_ID"
	EnvClientSecret = "CALPILOT_GOOGLE_CLIENT_SECRET"

	cacheDirName = "calpilot"
	oobRedirect  = "urn:ietf:wg:oauth:2.0:oob"
)

// ErrNoClientCredentials is returned when the OAuth client is not configured.
var ErrNoClientCredentials = errors.New("google OAuth client credentials not configured (set " + EnvClientID + " and " + EnvClientSecret + ")")

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// OAuthConfig returns the OAuth2 configuration for the calendar scopes.
func OAuthConfig() (*oauth2.Config, error) {
	id, secret := os.Getenv(EnvClientID), os.Getenv(EnvClientSecret)
	if id == "" || secret == "" {
		return nil, ErrNoClientCredentials
	}
	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		Endpoint:     google.Endpoint,
		RedirectURL:  oobRedirect,
		Scopes:       CalendarScopes,
	}, nil
}

// AuthURL returns the consent URL a user visits to authorize account.
func AuthURL(account string) (string, error) {
	conf, err := OAuthConfig()
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(account, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// SaveToken exchanges an authorization code and caches the token for account.
func SaveToken(ctx context.Context, account, authCode string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	conf, err := OAuthConfig()
	if err != nil {
		return err
	}

	tok, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return NewFileTokenProvider().Save(account, tok)
}

// HasTokenForAccount reports whether account has a cached token in the
// default location.
func HasTokenForAccount(account string) bool {
	return NewFileTokenProvider().HasTokenForAccount(account)
}

// HTTPClient returns an authorized client for the given token provider.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func HTTPClient(ctx context.Context, account string, provider TokenProvider) (*http.Client, error) {
	tok, err := provider.GetTokenForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google OAuth token for account %s: %w", account, err)
	}

	var ts oauth2.TokenSource = oauth2.StaticTokenSource(tok)
	if conf, err := OAuthConfig(); err == nil {
		ts = conf.TokenSource(ctx, tok)
	}

	client := oauth2.NewClient(ctx, ts)
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{ForceAttemptHTTP2: false}
	}
	return client, nil
}
