package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/telekom/reauth/pkg/metrics"
)

const claimsKey = "claims"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

var users = []User{
	{ID: "1", Name: "Kevin Tavares Mistrele", Email: "kevin@example.com", Role: "Pleno Front-End Engineer"},
	{ID: "2", Name: "John Doe", Email: "john@example.com", Role: "Junior Developer"},
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	TokenResponse
	User User `json:"user"`
}

// login accepts any email with a non-empty password.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "email and password are required"})
		return
	}
	user := lookupUser(req.Email)
	resp, err := s.tokens.issue(s.issuer(c), Identity{Subject: user.ID, Email: user.Email, Username: user.Name}, true)
	if err != nil {
		s.log.Errorw("Failed to issue tokens", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to issue tokens"})
		return
	}
	metrics.ServerTokensIssued.WithLabelValues("password").Inc()
	c.JSON(http.StatusOK, loginResponse{TokenResponse: resp, User: user})
}

func lookupUser(email string) User {
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return User{ID: email, Name: email, Email: email, Role: "Guest"}
}

// refresh is the OAuth2 token endpoint.
func (s *Server) refresh(c *gin.Context) {
	switch grant := c.PostForm("grant_type"); grant {
	case "refresh_token":
		s.refreshTokenGrant(c)
	case "client_credentials":
		s.clientCredentialsGrant(c)
	default:
		oauthError(c, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type: "+grant)
	}
}

func (s *Server) refreshTokenGrant(c *gin.Context) {
	claims, err := s.tokens.redeem(c.PostForm("refresh_token"))
	if err != nil {
		s.log.Debugw("Rejected refresh token", "error", err)
		oauthError(c, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}
	resp, err := s.tokens.issue(s.issuer(c), claims.identity(), true)
	if err != nil {
		oauthError(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	s.refreshes.Add(1)
	metrics.ServerTokensIssued.WithLabelValues("refresh_token").Inc()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) clientCredentialsGrant(c *gin.Context) {
	clientID, secret, ok := c.Request.BasicAuth()
	if !ok {
		clientID, secret = c.PostForm("client_id"), c.PostForm("client_secret")
	}
	if clientID != s.cfg.ClientID || (s.cfg.ClientSecret != "" && secret != s.cfg.ClientSecret) {
		oauthError(c, http.StatusUnauthorized, "invalid_client", "unknown client or bad secret")
		return
	}
	resp, err := s.tokens.issue(s.issuer(c), Identity{Subject: clientID, Username: clientID}, true)
	if err != nil {
		oauthError(c, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	metrics.ServerTokensIssued.WithLabelValues("client_credentials").Inc()
	c.JSON(http.StatusOK, resp)
}

func oauthError(c *gin.Context, status int, code, description string) {
	c.JSON(status, gin.H{"error": code, "error_description": description})
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		c.Request.Header.Del("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.unauthorized(c, "missing", "Missing bearer token")
			return
		}
		claims, err := s.tokens.parse(header[len("Bearer "):], tokenUseAccess)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			s.unauthorized(c, "expired", "Token expired")
			return
		case err != nil:
			s.unauthorized(c, "invalid", "Invalid token")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func (s *Server) unauthorized(c *gin.Context, reason, message string) {
	metrics.ServerUnauthorized.WithLabelValues(reason).Inc()
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": message})
}

func (s *Server) listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, users)
}

func (s *Server) me(c *gin.Context) {
	claims := c.MustGet(claimsKey).(*tokenClaims)
	c.JSON(http.StatusOK, gin.H{
		"sub":                claims.Subject,
		"email":              claims.Email,
		"preferred_username": claims.PreferredUsername,
		"exp":                claims.ExpiresAt.Unix(),
	})
}
