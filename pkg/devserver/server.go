package devserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/reauth/pkg/metrics"
)

const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
	DefaultClientID   = "reauth"
)

type Config struct {
	// Issuer is the public base URL. When empty it is derived from the
	// request, which keeps discovery working behind httptest.
	Issuer       string
	Secret       []byte
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ClientID     string
	ClientSecret string
	// AllowedOrigins enables CORS for browser frontends.
	AllowedOrigins []string
	// TokenRateLimit applies to /api/login and /api/refresh.
	TokenRateLimit RateLimit
	Debug          bool
}

type Server struct {
	gin    *gin.Engine
	cfg    Config
	tokens *tokenIssuer
	limit  *clientLimiter
	log    *zap.SugaredLogger

	refreshes atomic.Int64
}

func New(cfg Config, log *zap.Logger) (*Server, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)
	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{"GET", "PUT", "PATCH", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", "X-Correlation-ID"},
			ExposeHeaders: []string{"X-Correlation-ID"},
			MaxAge:        12 * time.Hour,
		}))
	}

	s := &Server{
		gin:    engine,
		cfg:    cfg,
		tokens: newTokenIssuer(cfg.Secret, cfg.AccessTTL, cfg.RefreshTTL),
		log:    log.Sugar(),
	}

	engine.GET("/.well-known/openid-configuration", s.discovery)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := engine.Group("api")
	tokenRoutes := api.Group("")
	if cfg.TokenRateLimit.Rate > 0 {
		s.limit = newClientLimiter(cfg.TokenRateLimit)
		tokenRoutes.Use(s.limit.middleware())
	}
	tokenRoutes.POST("login", s.login)
	tokenRoutes.POST("refresh", s.refresh)

	protected := api.Group("", s.authenticate())
	protected.GET("users", s.listUsers)
	protected.GET("me", s.me)

	return s, nil
}

func (s *Server) Handler() http.Handler { return s.gin }

// Refreshes counts successful refresh-token grants.
func (s *Server) Refreshes() int64 { return s.refreshes.Load() }

// IssueTokens mints a token pair outside of any request.
func (s *Server) IssueTokens(issuer string, id Identity) (TokenResponse, error) {
	return s.tokens.issue(issuer, id, true)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Dev server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Infow("Shutting down dev server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) issuer(c *gin.Context) string {
	if s.cfg.Issuer != "" {
		return strings.TrimRight(s.cfg.Issuer, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func (s *Server) discovery(c *gin.Context) {
	issuer := s.issuer(c)
	c.JSON(http.StatusOK, gin.H{
		"issuer":                                issuer,
		"token_endpoint":                        issuer + "/api/refresh",
		"grant_types_supported":                 []string{"refresh_token", "client_credentials"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		"id_token_signing_alg_values_supported": []string{"HS256"},
	})
}
