package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestValidateAccountName(t *testing.T) {
	tests := []struct {
		account string
		wantErr bool
	}{
		{"default", false},
		{"work-email", false},
		{"personal_email", false},
		{"account123", false},
		{"", true},
		{"my account", true},
		{"account@work", true},
		{"work/personal", true},
		{"../escape", true},
	}
	for _, tt := range tests {
		t.Run(tt.account, func(t *testing.T) {
			err := validateAccountName(tt.account)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func testProvider(t *testing.T, conf func() (*oauth2.Config, error)) *FileTokenProvider {
	t.Helper()
	return &FileTokenProvider{Dir: filepath.Join(t.TempDir(), "tokens"), oauthConfig: conf}
}

func noCredentials() (*oauth2.Config, error) { return nil, ErrNoClientCredentials }

func TestFileTokenProvider_SaveAndLoad(t *testing.T) {
	p := testProvider(t, noCredentials)
	assert.False(t, p.HasTokenForAccount("work"))

	want := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	require.NoError(t, p.Save("work", want))
	assert.True(t, p.HasTokenForAccount("work"))

	info, err := os.Stat(filepath.Join(p.Dir, "google-work.token"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := p.GetTokenForAccount(context.Background(), "work")
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.True(t, got.Expiry.Equal(want.Expiry))
}

func TestFileTokenProvider_InvalidAccount(t *testing.T) {
	p := testProvider(t, noCredentials)
	assert.Error(t, p.Save("a/b", &oauth2.Token{AccessToken: "x"}))
	assert.False(t, p.HasTokenForAccount(""))
	_, err := p.GetTokenForAccount(context.Background(), "bad name")
	assert.Error(t, err)
}

func TestFileTokenProvider_Missing(t *testing.T) {
	_, err := testProvider(t, noCredentials).GetTokenForAccount(context.Background(), "default")
	assert.ErrorContains(t, err, "calpilot auth")
}

func TestFileTokenProvider_ExpiredWithoutCredentials(t *testing.T) {
	p := testProvider(t, noCredentials)
	require.NoError(t, p.Save("default", &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	_, err := p.GetTokenForAccount(context.Background(), "default")
	assert.ErrorIs(t, err, ErrNoClientCredentials)
}

func TestFileTokenProvider_RefreshWritesBack(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh",
			"refresh_token": "rotated",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenServer.Close()

	p := testProvider(t, func() (*oauth2.Config, error) {
		return &oauth2.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: tokenServer.URL},
		}, nil
	})
	require.NoError(t, p.Save("default", &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	tok, err := p.GetTokenForAccount(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	stored, err := readToken(filepath.Join(p.Dir, "google-default.token"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "rotated", stored.RefreshToken)
}

func TestReadToken_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.token")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	_, err := readToken(path)
	assert.ErrorContains(t, err, "empty token")

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = readToken(path)
	assert.ErrorContains(t, err, "invalid token file")
}

func TestOAuthConfig_RequiresCredentials(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")
	_, err := OAuthConfig()
	assert.ErrorIs(t, err, ErrNoClientCredentials)

	t.Setenv(EnvClientID, "id")
	t.Setenv(EnvClientSecret, "secret")
	conf, err := OAuthConfig()
	require.NoError(t, err)
	assert.Equal(t, CalendarScopes, conf.Scopes)

	url, err := AuthURL("work")
	require.NoError(t, err)
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "state=work")
}

type staticProvider struct{ tok *oauth2.Token }

func (p staticProvider) GetTokenForAccount(context.Context, string) (*oauth2.Token, error) {
	return p.tok, nil
}

func (p staticProvider) HasTokenForAccount(string) bool { return true }

func TestHTTPClient_WithProvider(t *testing.T) {
	t.Setenv(EnvClientID, "")
	client, err := HTTPClient(context.Background(), "default", staticProvider{tok: &oauth2.Token{AccessToken: "x"}})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
