// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store is the credential store used by the client. The current token is
// cached in memory so AccessToken never touches the backend.
type Store struct {
	mu        sync.RWMutex
	provider  string
	backend   Backend
	refresher Refresher
	current   StoredToken
	log       *zap.SugaredLogger
}

// NewStore loads the token of provider from backend. A missing token is not
// an error; the store starts unauthenticated.
func NewStore(provider string, backend Backend, refresher Refresher, log *zap.SugaredLogger) (*Store, error) {
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	if backend == nil {
		return nil, errors.New("token backend is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Store{provider: provider, backend: backend, refresher: refresher, log: log}
	token, _, err := backend.Load(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	s.current = token
	return s, nil
}

func (s *Store) Provider() string { return s.provider }

func (s *Store) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken, s.current.AccessToken != ""
}

// Token returns a copy of the full stored token.
func (s *Store) Token() StoredToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether an access token is present. It does not
// check expiry; the server is the authority on that.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.AccessToken()
	return ok
}

// SetTokens stores a new access and refresh token pair.
func (s *Store) SetTokens(accessToken, refreshToken string) error {
	return s.Save(StoredToken{AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "Bearer"})
}

func (s *Store) Save(token StoredToken) error {
	if err := s.backend.Save(s.provider, token); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = token
	s.mu.Unlock()
	return nil
}

// Clear forgets the tokens in memory and in the backend.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.current = StoredToken{}
	s.mu.Unlock()
	return s.backend.Delete(s.provider)
}

// Refresh mints a new access token. It returns ok=false when there is no
// refresh token, meaning there is no session to refresh. A token that
// cannot be persisted is still returned and used from memory.
func (s *Store) Refresh(ctx context.Context) (string, bool, error) {
	if s.refresher == nil {
		return "", false, nil
	}
	prev := s.Token()
	if prev.RefreshToken == "" {
		s.log.Debugw("No refresh token stored", "provider", s.provider)
		return "", false, nil
	}

	refreshed, err := s.refresher.Refresh(ctx, prev)
	if err != nil {
		return "", false, err
	}
	if refreshed.AccessToken == "" {
		return "", false, nil
	}

	if err := s.backend.Save(s.provider, refreshed); err != nil {
		s.log.Warnw("Failed to persist refreshed token", "provider", s.provider, "error", err)
	}
	s.mu.Lock()
	s.current = refreshed
	s.mu.Unlock()
	s.log.Debugw("Stored refreshed token", "provider", s.provider, "expiry", refreshed.Expiry)
	return refreshed.AccessToken, true, nil
}
