package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telekom/reauth/pkg/config"
	"github.com/telekom/reauth/pkg/credentials"
	"github.com/telekom/reauth/pkg/devserver"
)

type testEnv struct {
	configPath string
	tokenPath  string
	stdout     *bytes.Buffer
	stderr     *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"REAUTH_CONTEXT", "REAUTH_OUTPUT", "REAUTH_SERVER", "REAUTH_TOKEN_STORAGE", "REAUTH_VERBOSE"} {
		t.Setenv(key, "")
	}
	return &testEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		tokenPath:  filepath.Join(dir, "tokens.json"),
		stdout:     &bytes.Buffer{},
		stderr:     &bytes.Buffer{},
	}
}

func (e *testEnv) run(args ...string) error {
	e.stdout.Reset()
	e.stderr.Reset()
	root := NewRootCommand(Config{
		ConfigPath:   e.configPath,
		TokenPath:    e.tokenPath,
		OutputWriter: e.stdout,
		ErrorWriter:  e.stderr,
		Logger:       zap.NewNop(),
	})
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetArgs(args)
	return root.Execute()
}

func (e *testEnv) saveConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	require.NoError(t, config.Save(e.configPath, &cfg))
}

// startDevServer returns a dev server and a config whose only context
// points at it and refreshes through its discovery document.
func startDevServer(t *testing.T) (*devserver.Server, *httptest.Server, config.Config) {
	t.Helper()
	srv, err := devserver.New(devserver.Config{Secret: []byte("cmd-test"), AccessTTL: time.Minute}, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.DefaultConfig()
	cfg.CurrentContext = "dev"
	cfg.Contexts = []config.Context{{Name: "dev", Server: ts.URL, OIDCProvider: "local"}}
	cfg.OIDCProviders = []config.OIDCProvider{{Name: "local", Authority: ts.URL, ClientID: devserver.DefaultClientID}}
	return srv, ts, cfg
}

func login(t *testing.T, ts *httptest.Server) devserver.TokenResponse {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(`{"email":"kevin@example.com","password":"pw"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens devserver.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tokens))
	return tokens
}

func TestRootRequiresConfig(t *testing.T) {
	env := newTestEnv(t)
	err := env.run("auth", "status")
	require.Error(t, err)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	env.saveConfig(t, config.Config{Version: config.VersionV1, Contexts: []config.Context{{Name: "x"}}})
	require.ErrorContains(t, env.run("auth", "status"), "server is required")
}

func TestRequestRefreshesExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	srv, ts, cfg := startDevServer(t)
	env.saveConfig(t, cfg)

	tokens := login(t, ts)
	require.NoError(t, env.run("auth", "set-token", "--access-token", "stale", "--refresh-token", tokens.RefreshToken))

	require.NoError(t, env.run("request", "GET", "/api/users"))
	var users []devserver.User
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &users))
	assert.Len(t, users, 2)
	assert.Empty(t, env.stderr.String())
	assert.EqualValues(t, 1, srv.Refreshes())

	// The refreshed token was persisted, so the next run needs no refresh.
	stored, ok, err := (&credentials.FileBackend{Path: env.tokenPath}).Load("local")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, "stale", stored.AccessToken)

	require.NoError(t, env.run("request", "GET", "/api/users", "-o", "yaml"))
	assert.Contains(t, env.stdout.String(), "email: kevin@example.com")
	assert.EqualValues(t, 1, srv.Refreshes())
}

func TestRequestRevokedSessionReportsError(t *testing.T) {
	env := newTestEnv(t)
	_, _, cfg := startDevServer(t)
	env.saveConfig(t, cfg)
	require.NoError(t, env.run("auth", "set-token", "--access-token", "stale", "--refresh-token", "bogus"))

	err := env.run("request", "GET", "/api/users")
	require.Error(t, err)
	assert.Contains(t, env.stderr.String(), "error: "+"unexpected error")
	assert.NotContains(t, env.stderr.String(), "Error:")
}

func TestRequestWithoutRefreshProvider(t *testing.T) {
	env := newTestEnv(t)
	_, ts, cfg := startDevServer(t)
	cfg.Contexts[0].OIDCProvider = ""
	cfg.OIDCProviders = nil
	env.saveConfig(t, cfg)

	err := env.run("request", "GET", "/api/users")
	require.Error(t, err)
	assert.Contains(t, env.stderr.String(), "error: unexpected error")

	tokens := login(t, ts)
	require.NoError(t, env.run("auth", "set-token", "--access-token", tokens.AccessToken))
	require.NoError(t, env.run("request", "GET", "/api/me", "-o", "raw"))
	assert.Contains(t, env.stdout.String(), `"email":"kevin@example.com"`)
}

func TestRequestServerOverrideWithoutConfig(t *testing.T) {
	env := newTestEnv(t)
	_, ts, _ := startDevServer(t)

	require.NoError(t, env.run("request", "GET", "/.well-known/openid-configuration", "--server", ts.URL))
	assert.Contains(t, env.stdout.String(), ts.URL+"/api/refresh")
}

func TestRequestSendsBodyAndHeaders(t *testing.T) {
	env := newTestEnv(t)
	var gotBody, gotHeader, gotType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		gotBody = buf.String()
		gotHeader = r.Header.Get("X-Trace")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	require.NoError(t, env.run("request", "post", "/api/items", "--server", ts.URL, "-d", `{"name":"x"}`, "-H", "X-Trace: abc"))
	assert.Equal(t, `{"name":"x"}`, gotBody)
	assert.Equal(t, "abc", gotHeader)
	assert.Equal(t, "application/json", gotType)

	require.ErrorContains(t, env.run("request", "GET", "/x", "--server", ts.URL, "-H", "broken"), "invalid header")
}

func TestSplitHeader(t *testing.T) {
	key, value, ok := splitHeader("Accept: text/plain")
	require.True(t, ok)
	assert.Equal(t, "Accept", key)
	assert.Equal(t, "text/plain", value)

	key, value, ok = splitHeader("X-Id=1")
	require.True(t, ok)
	assert.Equal(t, "X-Id", key)
	assert.Equal(t, "1", value)

	_, _, ok = splitHeader(": x")
	assert.False(t, ok)
}
