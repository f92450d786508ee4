package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/sadam21/gooddata-server-oauth2/internal/config"
	"github.com/sadam21/gooddata-server-oauth2/internal/http/handler"
	httpmiddleware "github.com/sadam21/gooddata-server-oauth2/internal/http/middleware"
	"github.com/sadam21/gooddata-server-oauth2/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, resolver httpmiddleware.OrgResolver, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", handler.Healthz)

	tenant := r.Group("/")
	tenant.Use(httpmiddleware.Org(resolver))
	tenant.Use(rateLimiter.Handler())
	tenant.Use(middleware.OrgCORS(cfg))
	tenant.Use(authMiddleware.Authenticate)
	{
		tenant.GET("/oauth2/authorization", authHandler.StartLogin)
		tenant.GET("/login/oauth2/code/:registrationId", authHandler.Callback)
		tenant.GET("/logout", authHandler.SignOut)
		tenant.POST("/logout", authHandler.SignOut)

		api := tenant.Group("/api", authMiddleware.RequireAuthentication)
		api.GET("/profile", authHandler.Profile)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}
