package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sadam21/gooddata-server-oauth2/internal/config"
	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	httpmiddleware "github.com/sadam21/gooddata-server-oauth2/internal/http/middleware"
)

type corsPolicy struct {
	origins     map[string]struct{}
	wildcard    bool
	methods     string
	headers     string
	credentials bool
}

// OrgCORS applies CORS headers per organization. An origin is allowed when it
// is in the global list or when its host is one of the resolved
// organization's hostnames.
func OrgCORS(cfg config.Config) gin.HandlerFunc {
	policy := newCORSPolicy(cfg)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		organization, _ := httpmiddleware.GetOrganization(c)
		preflight := c.Request.Method == http.MethodOptions
		if !policy.allows(origin, organization) {
			if preflight {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Add("Vary", "Origin")
		header.Set("Access-Control-Allow-Methods", policy.methods)
		header.Set("Access-Control-Allow-Headers", policy.headers)
		if policy.credentials {
			header.Set("Access-Control-Allow-Credentials", "true")
			header.Set("Access-Control-Allow-Origin", origin)
		} else if policy.wildcard {
			header.Set("Access-Control-Allow-Origin", "*")
		} else {
			header.Set("Access-Control-Allow-Origin", origin)
		}

		if preflight {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func newCORSPolicy(cfg config.Config) corsPolicy {
	p := corsPolicy{
		origins:     make(map[string]struct{}, len(cfg.CORSAllowedOrigins)),
		methods:     strings.Join(cfg.CORSAllowedMethods, ", "),
		headers:     strings.Join(cfg.CORSAllowedHeaders, ", "),
		credentials: cfg.CORSAllowCredentials,
	}
	for _, origin := range cfg.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			p.wildcard = true
		default:
			p.origins[strings.ToLower(origin)] = struct{}{}
		}
	}
	return p
}

func (p corsPolicy) allows(origin string, organization *domain.Organization) bool {
	if p.wildcard {
		return true
	}
	if _, ok := p.origins[strings.ToLower(origin)]; ok {
		return true
	}
	if organization == nil {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	return organization.HasHostname(u.Hostname())
}
