package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func writeCredentials(t *testing.T, dir, tokenURL string) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.json")
	body := `{"installed":{"client_id":"cid","client_secret":"secret","auth_uri":"https://accounts.example.com/auth","token_uri":"` + tokenURL + `","redirect_uris":["urn:ietf:wg:oauth:2.0:oob"]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestOAuthConfig(t *testing.T) {
	path := writeCredentials(t, t.TempDir(), "https://oauth2.example.com/token")

	cfg, err := OAuthConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, Scopes, cfg.Scopes)
	assert.Equal(t, "https://oauth2.example.com/token", cfg.Endpoint.TokenURL)
}

func TestOAuthConfigErrors(t *testing.T) {
	_, err := OAuthConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{}"), 0o600))
	_, err = OAuthConfig(bad)
	assert.Error(t, err)
}

func TestLoadTokenMissing(t *testing.T) {
	_, err := LoadToken(filepath.Join(t.TempDir(), "token.json"))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}

	require.NoError(t, SaveToken(path, tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.AccessToken)
	assert.Equal(t, "r", loaded.RefreshToken)
	assert.True(t, tok.Expiry.Equal(loaded.Expiry))
}

func TestLoadTokenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	_, err := LoadToken(path)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + accessToken + `","token_type":"Bearer","refresh_token":"refresh-1","expires_in":3600}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestAuthorize(t *testing.T) {
	ts := tokenServer(t, "fresh")
	cfg := &oauth2.Config{
		ClientID: "cid",
		Endpoint: oauth2.Endpoint{AuthURL: ts.URL + "/auth", TokenURL: ts.URL + "/token"},
		Scopes:   Scopes,
	}

	var out strings.Builder
	tok, err := Authorize(context.Background(), cfg, strings.NewReader("the-code\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Contains(t, out.String(), ts.URL+"/auth")
	assert.Contains(t, out.String(), "access_type=offline")
}

func TestAuthorizeEmptyCode(t *testing.T) {
	cfg := &oauth2.Config{Endpoint: oauth2.Endpoint{AuthURL: "https://example.com/auth", TokenURL: "https://example.com/token"}}
	var out strings.Builder
	_, err := Authorize(context.Background(), cfg, strings.NewReader("\n"), &out)
	assert.Error(t, err)
}

func TestNewHTTPClientRefreshesAndPersists(t *testing.T) {
	dir := t.TempDir()
	tokSrv := tokenServer(t, "refreshed")
	credPath := writeCredentials(t, dir, tokSrv.URL+"/token")
	tokenPath := filepath.Join(dir, "token.json")
	require.NoError(t, SaveToken(tokenPath, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-0",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer refreshed", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	client, err := NewHTTPClient(context.Background(), credPath, tokenPath, silentLog())
	require.NoError(t, err)

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	saved, err := LoadToken(tokenPath)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", saved.AccessToken)
}

func TestNewHTTPClientNotAuthenticated(t *testing.T) {
	dir := t.TempDir()
	credPath := writeCredentials(t, dir, "https://oauth2.example.com/token")

	_, err := NewHTTPClient(context.Background(), credPath, filepath.Join(dir, "token.json"), silentLog())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
