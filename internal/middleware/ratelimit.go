package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	httpmiddleware "github.com/sadam21/gooddata-server-oauth2/internal/http/middleware"
)

const (
	maxTrackedClients = 10000
	clientIdleWindow  = 5 * time.Minute
)

// RateLimiter throttles requests per organization and client IP, so one
// tenant's traffic cannot exhaust another's budget.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	perMin   int
	limiters *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter for the provided requests-per-minute budget.
// A non-positive budget disables limiting and returns nil.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    max(1, requestsPerMinute/10),
		perMin:   requestsPerMinute,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleWindow),
	}
}

// Handler returns the gin middleware. A nil limiter lets everything through.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		limiter := r.limiterFor(limiterKey(c))
		if !limiter.Allow() {
			c.Header("Retry-After", strconv.Itoa(r.retryAfterSeconds()))
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.perMin))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// limiterFor returns the bucket for key. Re-adding on every hit keeps the
// idle expiry sliding for active clients.
func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	limiter, ok := r.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
	}
	r.limiters.Add(key, limiter)
	return limiter
}

func (r *RateLimiter) retryAfterSeconds() int {
	return int(math.Ceil(1 / float64(r.limit)))
}

func limiterKey(c *gin.Context) string {
	if organization, ok := httpmiddleware.GetOrganization(c); ok && organization != nil {
		return organization.ID + "|" + c.ClientIP()
	}
	return c.ClientIP()
}
