package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	"github.com/sadam21/gooddata-server-oauth2/internal/http/middleware"
)

func TestOrgMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &fakeResolver{orgs: map[string]*domain.Organization{"org.example.com": {ID: "org"}}}

	r := gin.New()
	r.Use(middleware.Org(resolver))
	r.GET("/", func(c *gin.Context) {
		organization, ok := middleware.GetOrganization(c)
		require.True(t, ok)
		c.String(http.StatusOK, organization.ID)
	})

	w := serve(r, "http://org.example.com/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "org", w.Body.String())

	w = serve(r, "http://missing.example.com/", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	resolver.err = domain.NewUpstreamError("resolve org", errors.New("db down"))
	w = serve(r, "http://org.example.com/", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAuthenticateBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := &fakeTokens{token: &domain.VerifiedToken{Subject: "alice", JWTID: "abc"}}
	r := newAuthRouter(tokens, &fakeSessions{})

	w := serve(r, "http://org.example.com/api/profile", map[string]string{"Authorization": "Bearer raw-token"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "jwt:alice", w.Body.String())
	require.Equal(t, "raw-token", tokens.raw)

	tokens.err = domain.ErrTokenRevoked
	w = serve(r, "http://org.example.com/api/profile", map[string]string{"Authorization": "Bearer raw-token"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, `Bearer error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
	require.Contains(t, w.Body.String(), "Token revoked.")

	tokens.err = fmt.Errorf("%w: validate claims: %w", domain.ErrUnauthenticated, gojwt.ErrExpired)
	w = serve(r, "http://org.example.com/api/profile", map[string]string{"Authorization": "Bearer raw-token"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, `Bearer error="invalid_token", error_description="The access token expired"`, w.Header().Get("WWW-Authenticate"))
	require.Contains(t, w.Body.String(), "Token expired.")

	tokens.err = fmt.Errorf("%w: verify signature", domain.ErrUnauthenticated)
	w = serve(r, "http://org.example.com/api/profile", map[string]string{"Authorization": "Bearer raw-token"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "Invalid access token.")

	w = serve(r, "http://org.example.com/api/profile", map[string]string{"Authorization": "Basic abc"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := &fakeSessions{principal: domain.Principal{
		Subject:        "bob",
		OrganizationID: "org",
		ExpiresAt:      time.Now().Add(time.Hour),
	}, found: true}
	r := newAuthRouter(&fakeTokens{}, sessions)

	w := serve(r, "http://org.example.com/api/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "session:bob", w.Body.String())

	sessions.principal.OrganizationID = "other"
	w = serve(r, "http://org.example.com/api/profile", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	sessions.principal.OrganizationID = "org"
	sessions.principal.ExpiresAt = time.Now().Add(-time.Minute)
	w = serve(r, "http://org.example.com/api/profile", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	sessions.err = domain.NewUpstreamError("load keyset", errors.New("db down"))
	w = serve(r, "http://org.example.com/api/profile", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRequireAuthenticationRedirectsBrowser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := newAuthRouter(&fakeTokens{}, &fakeSessions{})

	w := serve(r, "http://org.example.com/dashboards?tab=1", nil)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/oauth2/authorization?return_to=%2Fdashboards%3Ftab%3D1", w.Header().Get("Location"))

	w = serve(r, "http://org.example.com/api/profile", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func newAuthRouter(tokens *fakeTokens, sessions *fakeSessions) *gin.Engine {
	resolver := &fakeResolver{orgs: map[string]*domain.Organization{"org.example.com": {ID: "org"}}}
	auth := middleware.NewAuth(tokens, sessions, nil)

	r := gin.New()
	r.Use(middleware.Org(resolver), auth.Authenticate)
	handler := func(c *gin.Context) {
		authentication, _ := middleware.GetAuthentication(c)
		c.String(http.StatusOK, string(authentication.Method())+":"+authentication.Name())
	}
	r.GET("/api/profile", auth.RequireAuthentication, handler)
	r.GET("/dashboards", auth.RequireAuthentication, handler)
	return r
}

func serve(r http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fakeResolver struct {
	orgs map[string]*domain.Organization
	err  error
}

func (f *fakeResolver) Resolve(_ context.Context, host string) (*domain.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	if org, ok := f.orgs[host]; ok {
		return org, nil
	}
	return nil, domain.ErrNotFound
}

type fakeTokens struct {
	token *domain.VerifiedToken
	err   error
	raw   string
}

func (f *fakeTokens) Authenticate(_ context.Context, _ *domain.Organization, raw string) (*domain.VerifiedToken, error) {
	f.raw = raw
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

type fakeSessions struct {
	principal domain.Principal
	found     bool
	err       error
}

func (f *fakeSessions) DecodeJSONCookie(_ *http.Request, _ string, v any) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if !f.found {
		return false, nil
	}
	*(v.(*domain.Principal)) = f.principal
	return true, nil
}
