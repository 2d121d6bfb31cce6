// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	TokenStorageFile     = "file"
	TokenStorageKeychain = "keychain"

	DefaultKeyringService = "reauth"
)

// Backend persists tokens keyed by provider name.
type Backend interface {
	Load(provider string) (StoredToken, bool, error)
	Save(provider string, token StoredToken) error
	Delete(provider string) error
}

// NewBackend returns the backend for mode. An empty mode selects the file
// cache at path.
func NewBackend(mode, path string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", TokenStorageFile:
		if path == "" {
			return nil, errors.New("token cache path is required")
		}
		return &FileBackend{Path: path}, nil
	case TokenStorageKeychain, "keyring":
		return &KeyringBackend{Service: DefaultKeyringService}, nil
	default:
		return nil, fmt.Errorf("unsupported token storage: %s", mode)
	}
}

// FileBackend stores tokens in a JSON token cache file.
type FileBackend struct {
	Path string
}

func (b *FileBackend) Load(provider string) (StoredToken, bool, error) {
	cache, err := LoadTokenCache(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return StoredToken{}, false, nil
		}
		return StoredToken{}, false, err
	}
	token, ok := cache.Tokens[provider]
	return token, ok, nil
}

func (b *FileBackend) Save(provider string, token StoredToken) error {
	cache, err := LoadTokenCache(b.Path)
	if err != nil {
		cache = &TokenCache{Tokens: map[string]StoredToken{}}
	}
	cache.Tokens[provider] = token
	return SaveTokenCache(b.Path, cache)
}

func (b *FileBackend) Delete(provider string) error {
	cache, err := LoadTokenCache(b.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	delete(cache.Tokens, provider)
	return SaveTokenCache(b.Path, cache)
}

// KeyringBackend stores each provider's token as a JSON secret in the OS
// keychain.
type KeyringBackend struct {
	Service string
}

func (b *KeyringBackend) service() string {
	if b.Service == "" {
		return DefaultKeyringService
	}
	return b.Service
}

func (b *KeyringBackend) Load(provider string) (StoredToken, bool, error) {
	secret, err := keyring.Get(b.service(), provider)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return StoredToken{}, false, nil
		}
		return StoredToken{}, false, fmt.Errorf("failed to read token from keychain: %w", err)
	}
	var token StoredToken
	if err := json.Unmarshal([]byte(secret), &token); err != nil {
		return StoredToken{}, false, fmt.Errorf("failed to parse keychain token: %w", err)
	}
	return token, true, nil
}

func (b *KeyringBackend) Save(provider string, token StoredToken) error {
	content, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(b.service(), provider, string(content)); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	return nil
}

func (b *KeyringBackend) Delete(provider string) error {
	if err := keyring.Delete(b.service(), provider); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keychain: %w", err)
	}
	return nil
}
