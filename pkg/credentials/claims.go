package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenInfo holds the unverified claims of an access token. It is for
// display only; the server validates tokens.
type TokenInfo struct {
	Subject           string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Email             string    `json:"email,omitempty" yaml:"email,omitempty"`
	PreferredUsername string    `json:"preferredUsername,omitempty" yaml:"preferredUsername,omitempty"`
	Issuer            string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	ExpiresAt         time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

func Describe(token string) (TokenInfo, error) {
	if token == "" {
		return TokenInfo{}, fmt.Errorf("token is empty")
	}
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("failed to parse token: %w", err)
	}
	info := TokenInfo{}
	info.Subject, _ = claims["sub"].(string)
	info.Email, _ = claims["email"].(string)
	info.PreferredUsername, _ = claims["preferred_username"].(string)
	info.Issuer, _ = claims["iss"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		info.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return info, nil
}

// Identity prefers email, then username, then subject.
func (i TokenInfo) Identity() string {
	switch {
	case i.Email != "":
		return i.Email
	case i.PreferredUsername != "":
		return i.PreferredUsername
	default:
		return i.Subject
	}
}

func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
