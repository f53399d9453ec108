package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/oauth2"
)

// TokenProvider supplies OAuth tokens for Google APIs.
type TokenProvider interface {
	// GetTokenForAccount returns a usable token, refreshing it if needed.
	GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error)

	// HasTokenForAccount reports whether account was ever authorized.
	HasTokenForAccount(account string) bool
}

// FileTokenProvider keeps one JSON token file per account in Dir. A token
// refreshed on read is written back, so a rotated refresh token is not
// lost between runs.
type FileTokenProvider struct {
	Dir string

	mu          sync.Mutex
	oauthConfig func() (*oauth2.Config, error)
}

// NewFileTokenProvider stores tokens under the user cache directory.
func NewFileTokenProvider() *FileTokenProvider {
	return &FileTokenProvider{
		Dir:         filepath.Join(userCacheDir(), cacheDirName),
		oauthConfig: OAuthConfig,
	}
}

func (p *FileTokenProvider) path(account string) (string, error) {
	if err := validateAccountName(account); err != nil {
		return "", err
	}
	return filepath.Join(p.Dir, "google-"+account+".token"), nil
}

// Save writes tok for account with 0600 permissions.
func (p *FileTokenProvider) Save(account string, tok *oauth2.Token) error {
	path, err := p.path(account)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return writeToken(path, tok)
}

// HasTokenForAccount reports whether a token file exists for account.
func (p *FileTokenProvider) HasTokenForAccount(account string) bool {
	path, err := p.path(account)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// GetTokenForAccount loads the cached token and refreshes it when expired.
// Without client credentials only an unexpired token can be returned.
func (p *FileTokenProvider) GetTokenForAccount(ctx context.Context, account string) (*oauth2.Token, error) {
	path, err := p.path(account)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cached, err := readToken(path)
	if err != nil {
		return nil, err
	}

	conf, err := p.oauthConfig()
	if err != nil {
		if cached.Valid() {
			return cached, nil
		}
		return nil, fmt.Errorf("token for %s expired: %w", account, err)
	}

	tok, err := conf.TokenSource(ctx, cached).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token for %s: %w", account, err)
	}
	if tok.AccessToken != cached.AccessToken || tok.RefreshToken != cached.RefreshToken {
		if err := writeToken(path, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("no token to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return os.Rename(tmp, path)
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no Google OAuth token found (run calpilot auth): %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("invalid token file %s: empty token", path)
	}
	return &tok, nil
}

func userCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir
	}
	if runtime.GOOS == "windows" {
		return os.TempDir()
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}
