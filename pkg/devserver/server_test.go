package devserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/reauth/pkg/credentials"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.Secret == nil {
		cfg.Secret = []byte("test-secret")
	}
	srv, err := New(cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// expiredTokens issues a pair whose access token is already expired while
// the refresh token is still valid.
func expiredTokens(t *testing.T, srv *Server, issuer string) TokenResponse {
	t.Helper()
	srv.tokens.now = func() time.Time { return time.Now().Add(-srv.cfg.AccessTTL - time.Minute) }
	defer func() { srv.tokens.now = time.Now }()
	resp, err := srv.IssueTokens(issuer, Identity{Subject: "1", Email: "kevin@example.com"})
	require.NoError(t, err)
	return resp
}

func getWithToken(t *testing.T, target, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	return resp, decoded
}

func postToken(t *testing.T, target string, form url.Values) (int, map[string]any) {
	t.Helper()
	resp, err := http.PostForm(target, form)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(Config{}, nil)
	require.ErrorContains(t, err, "signing secret is required")
}

func TestLoginAndListUsers(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(`{"email":"john@example.com","password":"pw"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	assert.Equal(t, "2", login.User.ID)
	assert.NotEmpty(t, login.RefreshToken)
	assert.EqualValues(t, DefaultAccessTTL/time.Second, login.ExpiresIn)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/users", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	usersResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = usersResp.Body.Close() }()
	require.Equal(t, http.StatusOK, usersResp.StatusCode)
	var got []User
	require.NoError(t, json.NewDecoder(usersResp.Body).Decode(&got))
	assert.Equal(t, users, got)

	info, err := credentials.Describe(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", info.Identity())
	assert.Equal(t, ts.URL, info.Issuer)
}

func TestLoginValidation(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	for _, body := range []string{``, `{"email":""}`, `{"email":"a@example.com"}`} {
		resp, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestUnauthorizedResponses(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	expired := expiredTokens(t, srv, ts.URL)
	refreshOnly, err := srv.IssueTokens(ts.URL, Identity{Subject: "1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{name: "missing", message: "Missing bearer token"},
		{name: "garbage", token: "not-a-jwt", message: "Invalid token"},
		{name: "expired", token: expired.AccessToken, message: "Token expired"},
		{name: "refresh token as access", token: refreshOnly.RefreshToken, message: "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := getWithToken(t, ts.URL+"/api/users", tt.token)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestMe(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	tokens, err := srv.IssueTokens(ts.URL, Identity{Subject: "42", Email: "x@example.com", Username: "x"})
	require.NoError(t, err)

	resp, body := getWithToken(t, ts.URL+"/api/me", tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "42", body["sub"])
	assert.Equal(t, "x", body["preferred_username"])
}

func TestRefreshRotatesTokens(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	tokens := expiredTokens(t, srv, ts.URL)

	status, body := postToken(t, ts.URL+"/api/refresh", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, tokens.RefreshToken, body["refresh_token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.EqualValues(t, 1, srv.Refreshes())

	resp, _ := getWithToken(t, ts.URL+"/api/users", body["access_token"].(string))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, body = postToken(t, ts.URL+"/api/refresh", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", body["error"])
	assert.EqualValues(t, 1, srv.Refreshes())
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	tokens, err := srv.IssueTokens(ts.URL, Identity{Subject: "1"})
	require.NoError(t, err)

	status, body := postToken(t, ts.URL+"/api/refresh", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.AccessToken},
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestClientCredentialsGrant(t *testing.T) {
	_, ts := newTestServer(t, Config{ClientID: "machine", ClientSecret: "s3cret"})

	status, body := postToken(t, ts.URL+"/api/refresh", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"machine"},
		"client_secret": {"s3cret"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["access_token"])

	status, body = postToken(t, ts.URL+"/api/refresh", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"machine"},
		"client_secret": {"wrong"},
	})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_client", body["error"])

	status, body = postToken(t, ts.URL+"/api/refresh", url.Values{"grant_type": {"password"}})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unsupported_grant_type", body["error"])
}

func TestDiscoveryDocument(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	endpoint, err := credentials.DiscoverEndpoint(ctx, ts.Client(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, ts.URL+"/api/refresh", endpoint.TokenURL)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"http://localhost:5173"}})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/users", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, err := http.Post(ts.URL+"/api/login", "application/json", strings.NewReader(`{"email":"kevin@example.com","password":"pw"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = metricsResp.Body.Close() }()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `reauth_devserver_tokens_issued_total{grant_type="password"}`)
}
