package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	"github.com/sadam21/gooddata-server-oauth2/internal/jwt"
)

const (
	bearerChallenge  = `Bearer error="invalid_token"`
	expiredChallenge = `Bearer error="invalid_token", error_description="The access token expired"`
)

// RespondError maps domain error kinds to HTTP responses and aborts the chain.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrLogoutInvalidationFailed):
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "logout_failed", "error_description": "Could not invalidate the token."})
	case errors.Is(err, domain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "invalid_tenant", "error_description": "Unknown organization."})
	case errors.Is(err, domain.ErrTokenRevoked):
		c.Header("WWW-Authenticate", bearerChallenge)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Token revoked."})
	case jwt.IsExpired(err):
		c.Header("WWW-Authenticate", expiredChallenge)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Token expired."})
	case errors.Is(err, domain.ErrUnauthenticated):
		c.Header("WWW-Authenticate", bearerChallenge)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
	case errors.Is(err, domain.ErrUpstream):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "error_description": "Upstream service unavailable."})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
	}
}
