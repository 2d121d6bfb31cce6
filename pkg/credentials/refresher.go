// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// ErrInvalidGrant is returned when the token endpoint rejects the refresh
// token itself, as opposed to a transport failure.
var ErrInvalidGrant = errors.New("refresh token rejected")

// Refresher exchanges the refresh token of prev for a new token.
type Refresher interface {
	Refresh(ctx context.Context, prev StoredToken) (StoredToken, error)
}

type RefresherFunc func(ctx context.Context, prev StoredToken) (StoredToken, error)

func (f RefresherFunc) Refresh(ctx context.Context, prev StoredToken) (StoredToken, error) {
	return f(ctx, prev)
}

// OAuthRefresher runs a refresh-token grant against the configured token
// endpoint on every call, regardless of the cached token's expiry.
type OAuthRefresher struct {
	Config     oauth2.Config
	HTTPClient *http.Client
}

func (r *OAuthRefresher) Refresh(ctx context.Context, prev StoredToken) (StoredToken, error) {
	if prev.RefreshToken == "" {
		return StoredToken{}, nil
	}
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	// An empty access token is never valid, which forces the grant.
	src := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: prev.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return StoredToken{}, fmt.Errorf("%w: %v", ErrInvalidGrant, err)
		}
		return StoredToken{}, fmt.Errorf("failed to refresh token: %w", err)
	}
	return FromOAuth2(refreshed, prev), nil
}

// DiscoveringRefresher defers OIDC discovery until the first refresh, so
// commands that never hit a 401 make no identity-provider round trip.
// A failed discovery is retried on the next refresh.
type DiscoveringRefresher struct {
	cfg   OIDCConfig
	mu    sync.Mutex
	inner *OAuthRefresher
}

func NewDiscoveringRefresher(cfg OIDCConfig) *DiscoveringRefresher {
	return &DiscoveringRefresher{cfg: cfg}
}

func (r *DiscoveringRefresher) Refresh(ctx context.Context, prev StoredToken) (StoredToken, error) {
	inner, err := r.resolve(ctx)
	if err != nil {
		return StoredToken{}, err
	}
	return inner.Refresh(ctx, prev)
}

func (r *DiscoveringRefresher) resolve(ctx context.Context) (*OAuthRefresher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inner != nil {
		return r.inner, nil
	}
	inner, err := NewRefresher(ctx, r.cfg)
	if err != nil {
		return nil, err
	}
	r.inner = inner
	return inner, nil
}
