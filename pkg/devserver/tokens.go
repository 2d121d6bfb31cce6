package devserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

var (
	errWrongTokenUse = errors.New("wrong token type")
	errRevoked       = errors.New("refresh token already used")
)

type tokenClaims struct {
	TokenUse          string `json:"token_use"`
	Email             string `json:"email,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	jwt.RegisteredClaims
}

// TokenResponse is the OAuth2 token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Identity struct {
	Subject  string
	Email    string
	Username string
}

// tokenIssuer signs tokens and remembers consumed refresh tokens until
// they would have expired anyway.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu   sync.Mutex
	used map[string]time.Time
}

func newTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *tokenIssuer {
	return &tokenIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		used:       map[string]time.Time{},
	}
}

func (t *tokenIssuer) issue(issuer string, id Identity, withRefresh bool) (TokenResponse, error) {
	access, err := t.sign(issuer, id, tokenUseAccess, t.accessTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	resp := TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(t.accessTTL / time.Second),
	}
	if withRefresh {
		resp.RefreshToken, err = t.sign(issuer, id, tokenUseRefresh, t.refreshTTL)
		if err != nil {
			return TokenResponse{}, err
		}
	}
	return resp, nil
}

func (t *tokenIssuer) sign(issuer string, id Identity, use string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := tokenClaims{
		TokenUse:          use,
		Email:             id.Email,
		PreferredUsername: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (t *tokenIssuer) parse(raw, use string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.TokenUse != use {
		return nil, errWrongTokenUse
	}
	return claims, nil
}

// redeem validates a refresh token and marks it consumed.
func (t *tokenIssuer) redeem(raw string) (*tokenClaims, error) {
	claims, err := t.parse(raw, tokenUseRefresh)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for id, exp := range t.used {
		if now.After(exp) {
			delete(t.used, id)
		}
	}
	if _, ok := t.used[claims.ID]; ok {
		return nil, errRevoked
	}
	t.used[claims.ID] = claims.ExpiresAt.Time
	return claims, nil
}

func (c *tokenClaims) identity() Identity {
	return Identity{Subject: c.Subject, Email: c.Email, Username: c.PreferredUsername}
}
