package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig describes the identity provider that issues and refreshes
// tokens. When TokenURL is set discovery is skipped.
type OIDCConfig struct {
	Authority       string
	ClientID        string
	ClientSecret    string
	Scopes          []string
	TokenURL        string
	CAFile          string
	InsecureSkipTLS bool
}

type LoginResult struct {
	Token   *oauth2.Token
	IDToken string
}

type OAuthConfigResult struct {
	OAuthConfig oauth2.Config
	Client      *http.Client
}

func BuildOAuthConfig(ctx context.Context, cfg OIDCConfig) (*OAuthConfigResult, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client-id is required")
	}
	if cfg.Authority == "" && cfg.TokenURL == "" {
		return nil, errors.New("authority or token-url is required")
	}
	httpClient, err := NewHTTPClient(cfg.CAFile, cfg.InsecureSkipTLS)
	if err != nil {
		return nil, err
	}

	scopes := []string{oidc.ScopeOpenID, oidc.ScopeOfflineAccess}
	if len(cfg.Scopes) > 0 {
		scopes = cfg.Scopes
	}
	oauthCfg := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       scopes,
	}

	if cfg.TokenURL != "" {
		oauthCfg.Endpoint = oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: oauth2.AuthStyleInParams}
		return &OAuthConfigResult{OAuthConfig: oauthCfg, Client: httpClient}, nil
	}

	endpoint, err := DiscoverEndpoint(ctx, httpClient, cfg.Authority)
	if err != nil {
		return nil, err
	}
	oauthCfg.Endpoint = endpoint
	return &OAuthConfigResult{OAuthConfig: oauthCfg, Client: httpClient}, nil
}

// DiscoverEndpoint reads the OIDC discovery document of authority.
func DiscoverEndpoint(ctx context.Context, httpClient *http.Client, authority string) (oauth2.Endpoint, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), authority)
	if err != nil {
		return oauth2.Endpoint{}, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return provider.Endpoint(), nil
}

// NewRefresher builds the refresh-token grant for cfg.
func NewRefresher(ctx context.Context, cfg OIDCConfig) (*OAuthRefresher, error) {
	result, err := BuildOAuthConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &OAuthRefresher{Config: result.OAuthConfig, HTTPClient: result.Client}, nil
}

func NewHTTPClient(caFile string, insecure bool) (*http.Client, error) {
	tlsConfig, err := LoadTLSConfig(caFile, insecure)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}, Timeout: 30 * time.Second}, nil
}

func LoadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	if caFile == "" && !insecure {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	certPool, err := loadCertPool(caFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec // opt-in for dev servers
		RootCAs:            certPool,
	}, nil
}

func loadCertPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	return pool, nil
}

// ResolveClientSecret picks the secret from the literal value, then the
// named env var, then the file.
func ResolveClientSecret(secret, secretEnv, secretFile string) (string, error) {
	if secret != "" {
		return secret, nil
	}
	if secretEnv != "" {
		value := strings.TrimSpace(os.Getenv(secretEnv))
		if value == "" {
			return "", fmt.Errorf("client secret env var not set: %s", secretEnv)
		}
		return value, nil
	}
	if secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret file: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return "", nil
}
