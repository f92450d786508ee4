package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

const orgContextKey = "organization"

// OrgResolver resolves the organization owning a hostname.
type OrgResolver interface {
	Resolve(ctx context.Context, host string) (*domain.Organization, error)
}

// Org attaches the organization owning the request host to the gin context.
func Org(resolver OrgResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		organization, err := resolver.Resolve(c.Request.Context(), c.Request.Host)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.Set(orgContextKey, organization)
		c.Next()
	}
}

// GetOrganization extracts the resolved organization from gin.
func GetOrganization(c *gin.Context) (*domain.Organization, bool) {
	value, ok := c.Get(orgContextKey)
	if !ok {
		return nil, false
	}
	organization, ok := value.(*domain.Organization)
	return organization, ok
}
