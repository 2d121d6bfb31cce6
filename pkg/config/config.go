package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	DefaultTimeout        = 30 * time.Second
	DefaultRefreshTimeout = 30 * time.Second
)

var validOutputFormats = map[string]bool{"json": true, "yaml": true, "raw": true}

type Config struct {
	Version        string         `yaml:"version"`
	CurrentContext string         `yaml:"current-context,omitempty"`
	OIDCProviders  []OIDCProvider `yaml:"oidc-providers,omitempty"`
	Contexts       []Context      `yaml:"contexts,omitempty"`
	Settings       Settings       `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat string        `yaml:"output-format,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	// RefreshTimeout bounds a credential refresh. Unset means the default,
	// zero disables the bound.
	RefreshTimeout *time.Duration `yaml:"refresh-timeout,omitempty"`
	LogLevel       string         `yaml:"log-level,omitempty"`
	// Production drops informational diagnostics.
	Production bool `yaml:"production,omitempty"`
}

type OIDCProvider struct {
	Name             string   `yaml:"name"`
	Authority        string   `yaml:"authority,omitempty"`
	TokenURL         string   `yaml:"token-url,omitempty"`
	ClientID         string   `yaml:"client-id"`
	ClientSecret     string   `yaml:"client-secret,omitempty"`
	ClientSecretEnv  string   `yaml:"client-secret-env,omitempty"`
	ClientSecretFile string   `yaml:"client-secret-file,omitempty"`
	CAFile           string   `yaml:"ca-file,omitempty"`
	Scopes           []string `yaml:"scopes,omitempty"`
	InsecureSkipTLS  bool     `yaml:"insecure-skip-tls-verify,omitempty"`
}

type Context struct {
	Name                  string      `yaml:"name"`
	Server                string      `yaml:"server"`
	OIDCProvider          string      `yaml:"oidc-provider,omitempty"`
	CAFile                string      `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify bool        `yaml:"insecure-skip-tls-verify,omitempty"`
	TokenStorage          string      `yaml:"token-storage,omitempty"`
	OIDC                  *InlineOIDC `yaml:"oidc,omitempty"`
}

type InlineOIDC struct {
	Authority       string   `yaml:"authority,omitempty"`
	TokenURL        string   `yaml:"token-url,omitempty"`
	ClientID        string   `yaml:"client-id"`
	ClientSecret    string   `yaml:"client-secret,omitempty"`
	Scopes          []string `yaml:"scopes,omitempty"`
	CAFile          string   `yaml:"ca-file,omitempty"`
	InsecureSkipTLS bool     `yaml:"insecure-skip-tls-verify,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat: "json",
			Timeout:      DefaultTimeout,
			LogLevel:     "info",
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindContext(name string) (*Context, error) {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			return &c.Contexts[i], nil
		}
	}
	return nil, fmt.Errorf("context not found: %s", name)
}

func (c *Config) FindOIDCProvider(name string) (*OIDCProvider, error) {
	for i := range c.OIDCProviders {
		if c.OIDCProviders[i].Name == name {
			return &c.OIDCProviders[i], nil
		}
	}
	return nil, fmt.Errorf("oidc provider not found: %s", name)
}

func (c *Config) CurrentContextOrDefault() string {
	if c.CurrentContext != "" {
		return c.CurrentContext
	}
	if len(c.Contexts) > 0 {
		return c.Contexts[0].Name
	}
	return ""
}

// UseContext switches the current context after checking it exists.
func (c *Config) UseContext(name string) error {
	if _, err := c.FindContext(name); err != nil {
		return err
	}
	c.CurrentContext = name
	return nil
}

func (s Settings) EffectiveTimeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s Settings) EffectiveRefreshTimeout() time.Duration {
	if s.RefreshTimeout == nil {
		return DefaultRefreshTimeout
	}
	return *s.RefreshTimeout
}

// ErrNoOIDCProvider means the context has no identity provider, so its
// tokens can be used but never refreshed.
var ErrNoOIDCProvider = errors.New("no oidc provider configured")

type ResolvedOIDC struct {
	ProviderName     string
	Authority        string
	TokenURL         string
	ClientID         string
	ClientSecret     string
	ClientSecretEnv  string
	ClientSecretFile string
	Scopes           []string
	CAFile           string
	InsecureSkipTLS  bool
}

func (c *Config) ResolveOIDC(ctx *Context) (*ResolvedOIDC, error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}
	if ctx.OIDC != nil {
		return &ResolvedOIDC{
			Authority:       ctx.OIDC.Authority,
			TokenURL:        ctx.OIDC.TokenURL,
			ClientID:        ctx.OIDC.ClientID,
			ClientSecret:    ctx.OIDC.ClientSecret,
			Scopes:          ctx.OIDC.Scopes,
			CAFile:          ctx.OIDC.CAFile,
			InsecureSkipTLS: ctx.OIDC.InsecureSkipTLS,
		}, nil
	}
	if ctx.OIDCProvider == "" {
		return nil, ErrNoOIDCProvider
	}
	provider, err := c.FindOIDCProvider(ctx.OIDCProvider)
	if err != nil {
		return nil, err
	}
	return &ResolvedOIDC{
		ProviderName:     provider.Name,
		Authority:        provider.Authority,
		TokenURL:         provider.TokenURL,
		ClientID:         provider.ClientID,
		ClientSecret:     provider.ClientSecret,
		ClientSecretEnv:  provider.ClientSecretEnv,
		ClientSecretFile: provider.ClientSecretFile,
		Scopes:           provider.Scopes,
		CAFile:           provider.CAFile,
		InsecureSkipTLS:  provider.InsecureSkipTLS,
	}, nil
}

// TokenKey names the token cache entry of a context. Contexts sharing a
// provider share its tokens.
func (c *Config) TokenKey(ctx *Context) string {
	if ctx.OIDC == nil && ctx.OIDCProvider != "" {
		return ctx.OIDCProvider
	}
	return ctx.Name
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	if format := c.Settings.OutputFormat; format != "" && !validOutputFormats[format] {
		return fmt.Errorf("invalid output format: %s", format)
	}
	if c.Settings.RefreshTimeout != nil && *c.Settings.RefreshTimeout < 0 {
		return errors.New("refresh-timeout cannot be negative")
	}
	seen := map[string]bool{}
	for _, ctx := range c.Contexts {
		if strings.TrimSpace(ctx.Name) == "" {
			return errors.New("context name cannot be empty")
		}
		if seen[ctx.Name] {
			return fmt.Errorf("duplicate context: %s", ctx.Name)
		}
		seen[ctx.Name] = true
		if strings.TrimSpace(ctx.Server) == "" {
			return fmt.Errorf("context %s server is required", ctx.Name)
		}
		if ctx.OIDCProvider != "" && ctx.OIDC == nil {
			if _, err := c.FindOIDCProvider(ctx.OIDCProvider); err != nil {
				return fmt.Errorf("context %s: %w", ctx.Name, err)
			}
		}
	}
	for _, p := range c.OIDCProviders {
		if p.Authority == "" && p.TokenURL == "" {
			return fmt.Errorf("oidc provider %s needs an authority or token-url", p.Name)
		}
	}
	return nil
}
