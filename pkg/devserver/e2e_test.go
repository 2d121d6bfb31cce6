package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/telekom/reauth/pkg/client"
	"github.com/telekom/reauth/pkg/credentials"
	"github.com/telekom/reauth/pkg/diagnostics"
)

func newEndToEndClient(t *testing.T, authority string, tokens TokenResponse) (*client.Client, *credentials.Store, *diagnostics.Recorder) {
	t.Helper()
	backend := &credentials.FileBackend{Path: filepath.Join(t.TempDir(), "tokens.json")}
	refresher := credentials.NewDiscoveringRefresher(credentials.OIDCConfig{Authority: authority, ClientID: DefaultClientID})
	store, err := credentials.NewStore("dev", backend, refresher, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetTokens(tokens.AccessToken, tokens.RefreshToken))

	recorder := &diagnostics.Recorder{}
	c, err := client.New(
		client.WithServer(authority),
		client.WithCredentialStore(store),
		client.WithDiagnostics(recorder),
		client.WithRefreshTimeout(5*time.Second),
	)
	require.NoError(t, err)
	return c, store, recorder
}

func TestEndToEndConcurrentRefresh(t *testing.T) {
	const callers = 8

	srv, err := New(Config{Secret: []byte("test-secret")}, nil)
	require.NoError(t, err)

	// The token endpoint waits until every other caller is queued behind
	// the refresh, so all of them share one round.
	var c *client.Client
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/refresh" {
			deadline := time.Now().Add(5 * time.Second)
			for c.Waiting() < callers-1 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
		}
		srv.Handler().ServeHTTP(w, r)
	}))
	defer ts.Close()

	tokens := expiredTokens(t, srv, ts.URL)
	c, store, recorder := newEndToEndClient(t, ts.URL, tokens)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			var got []User
			if err := c.Get(gctx, "/api/users", &got); err != nil {
				return err
			}
			if len(got) != len(users) {
				return errors.New("unexpected user list")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, srv.Refreshes())
	assert.Zero(t, recorder.Len())
	assert.NotEqual(t, tokens.AccessToken, store.Token().AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, store.Token().RefreshToken)
	assert.Equal(t, client.Idle, c.RefreshState())
}

func TestEndToEndRevokedSession(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	tokens := expiredTokens(t, srv, ts.URL)
	_, err := srv.tokens.redeem(tokens.RefreshToken)
	require.NoError(t, err)

	c, _, recorder := newEndToEndClient(t, ts.URL, tokens)
	err = c.Get(context.Background(), "/api/users", nil)
	require.ErrorIs(t, err, client.ErrRefreshFailed)
	require.ErrorIs(t, err, credentials.ErrInvalidGrant)
	assert.Equal(t, 1, recorder.Len())
}

func TestEndToEndRefreshedTokenIsReused(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	tokens := expiredTokens(t, srv, ts.URL)
	c, _, _ := newEndToEndClient(t, ts.URL, tokens)

	// The refreshed token is accepted, so a second call needs no refresh.
	require.NoError(t, c.Get(context.Background(), "/api/users", nil))
	require.NoError(t, c.Get(context.Background(), "/api/me", nil))
	assert.EqualValues(t, 1, srv.Refreshes())
}
