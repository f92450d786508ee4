package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sadam21/gooddata-server-oauth2/internal/cookie"
	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

const (
	authenticationKey = "authentication"
	loginPath         = "/oauth2/authorization"
	apiPrefix         = "/api/"
)

// TokenAuthenticator validates bearer tokens of an organization.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, org *domain.Organization, raw string) (*domain.VerifiedToken, error)
}

// SessionReader decodes the encrypted session cookie.
type SessionReader interface {
	DecodeJSONCookie(r *http.Request, name string, v any) (bool, error)
}

// Auth authenticates requests with a bearer JWT or the session cookie.
type Auth struct {
	tokens   TokenAuthenticator
	sessions SessionReader
	now      func() time.Time
	logger   *zap.Logger
}

func NewAuth(tokens TokenAuthenticator, sessions SessionReader, logger *zap.Logger) *Auth {
	return &Auth{tokens: tokens, sessions: sessions, now: time.Now, logger: logger}
}

// Authenticate attaches the request's authentication when there is one.
// A presented bearer token must be valid; a bad session cookie is ignored.
func (m *Auth) Authenticate(c *gin.Context) {
	organization, ok := GetOrganization(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "invalid_tenant", "error_description": "Org missing."})
		return
	}

	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.Header("WWW-Authenticate", bearerChallenge)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
			return
		}
		token, err := m.tokens.Authenticate(c.Request.Context(), organization, strings.TrimSpace(parts[1]))
		if err != nil {
			m.log().Debug("bearer authentication failed", zap.String("org_id", organization.ID), zap.Error(err))
			RespondError(c, err)
			return
		}
		c.Set(authenticationKey, &domain.JWTAuthentication{OrganizationID: organization.ID, Token: *token})
		c.Next()
		return
	}

	var principal domain.Principal
	found, err := m.sessions.DecodeJSONCookie(c.Request, cookie.SessionCookieName, &principal)
	if err != nil {
		RespondError(c, err)
		return
	}
	if found && principal.OrganizationID == organization.ID && !principal.Expired(m.now()) {
		c.Set(authenticationKey, &domain.SessionAuthentication{Principal: principal})
	}
	c.Next()
}

// RequireAuthentication rejects anonymous requests. API calls get a 401 and
// browser navigation is redirected to the login entry point.
func (m *Auth) RequireAuthentication(c *gin.Context) {
	if _, ok := GetAuthentication(c); ok {
		c.Next()
		return
	}
	if strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}
	c.Redirect(http.StatusFound, loginPath+"?return_to="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}

// GetAuthentication returns the authentication attached by Authenticate.
func GetAuthentication(c *gin.Context) (domain.Authentication, bool) {
	value, ok := c.Get(authenticationKey)
	if !ok {
		return nil, false
	}
	authentication, ok := value.(domain.Authentication)
	return authentication, ok
}

func (m *Auth) log() *zap.Logger {
	if m.logger != nil {
		return m.logger
	}
	return zap.L()
}
