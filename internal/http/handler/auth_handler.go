package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sadam21/gooddata-server-oauth2/internal/cookie"
	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	domainoauth "github.com/sadam21/gooddata-server-oauth2/internal/domain/oauth"
	"github.com/sadam21/gooddata-server-oauth2/internal/http/middleware"
	"github.com/sadam21/gooddata-server-oauth2/internal/service"
)

// LoginFlow drives the authorization code flow.
type LoginFlow interface {
	StartAuthorization(ctx context.Context, in service.StartAuthorizationInput) (*service.StartAuthorizationOutput, error)
	HandleCallback(ctx context.Context, in service.CallbackInput) (*service.CallbackOutput, error)
}

// CookieStore writes and reads the encrypted cookies.
type CookieStore interface {
	CreateJSONCookie(w http.ResponseWriter, r *http.Request, name string, v any) error
	InvalidateCookie(w http.ResponseWriter, r *http.Request, name string)
	DecodeJSONCookie(r *http.Request, name string, v any) (bool, error)
}

// LogoutFlow revokes the current authentication.
type LogoutFlow interface {
	Logout(ctx context.Context, hostname string, authentication domain.Authentication) error
	SuccessRedirect(w http.ResponseWriter, r *http.Request)
}

// AuthHandler serves the login, callback, logout and profile endpoints.
type AuthHandler struct {
	Login   LoginFlow
	Cookies CookieStore
	Logout  LogoutFlow
	logger  *zap.Logger
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(login LoginFlow, cookies CookieStore, logout LogoutFlow, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Login: login, Cookies: cookies, Logout: logout, logger: logger}
}

// StartLogin redirects the browser to the organization's identity provider.
func (h *AuthHandler) StartLogin(c *gin.Context) {
	out, err := h.Login.StartAuthorization(c.Request.Context(), service.StartAuthorizationInput{
		Host:     hostOnly(c.Request),
		BaseURL:  baseURL(c.Request),
		ReturnTo: c.Query("return_to"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Cookies.CreateJSONCookie(c.Writer, c.Request, cookie.AuthorizationRequestCookieName, out.Request); err != nil {
		h.respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

// Callback completes the login and stores the session cookie.
func (h *AuthHandler) Callback(c *gin.Context) {
	host := hostOnly(c.Request)
	if registrationID := c.Param("registrationId"); registrationID != "" && !strings.EqualFold(registrationID, host) {
		h.respondError(c, domainoauth.ErrInvalidRequest)
		return
	}

	var request domainoauth.AuthorizationRequest
	found, err := h.Cookies.DecodeJSONCookie(c.Request, cookie.AuthorizationRequestCookieName, &request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Cookies.InvalidateCookie(c.Writer, c.Request, cookie.AuthorizationRequestCookieName)

	in := service.CallbackInput{
		Host:             host,
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}
	if found {
		in.Request = &request
	}

	out, err := h.Login.HandleCallback(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Cookies.CreateJSONCookie(c.Writer, c.Request, cookie.SessionCookieName, out.Principal); err != nil {
		h.respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, out.ReturnTo)
}

// SignOut revokes a bearer JWT, clears the cookies and redirects.
func (h *AuthHandler) SignOut(c *gin.Context) {
	authentication, _ := middleware.GetAuthentication(c)
	err := h.Logout.Logout(c.Request.Context(), c.Request.Host, authentication)

	h.Cookies.InvalidateCookie(c.Writer, c.Request, cookie.SessionCookieName)
	h.Cookies.InvalidateCookie(c.Writer, c.Request, cookie.AuthorizationRequestCookieName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Logout.SuccessRedirect(c.Writer, c.Request)
	c.Abort()
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(c *gin.Context) {
	authentication, ok := middleware.GetAuthentication(c)
	if !ok {
		h.respondError(c, domain.ErrUnauthenticated)
		return
	}
	resp := gin.H{
		"sub":    authentication.Name(),
		"method": authentication.Method(),
	}
	if organization, ok := middleware.GetOrganization(c); ok {
		resp["organization_id"] = organization.ID
	}
	switch a := authentication.(type) {
	case *domain.SessionAuthentication:
		resp["name"] = a.Principal.Name
		resp["email"] = a.Principal.Email
		resp["expires_at"] = a.Principal.ExpiresAt
	case *domain.JWTAuthentication:
		resp["name"] = a.Token.StringClaim("name")
		resp["email"] = a.Token.StringClaim("email")
		resp["expires_at"] = a.Token.Expiry
	}
	c.JSON(http.StatusOK, resp)
}

// Healthz reports liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandler) respondError(c *gin.Context, err error) {
	logger := h.log().With(zap.String("request_id", middleware.GetRequestID(c)))
	switch {
	case errors.Is(err, domainoauth.ErrInvalidState), errors.Is(err, domainoauth.ErrInvalidRequest):
		logger.Warn("oauth invalid request", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	case errors.Is(err, domainoauth.ErrAccessDenied):
		logger.Warn("oauth access denied", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "access_denied", "error_description": "Identity provider denied the login."})
	case errors.Is(err, domainoauth.ErrTokenInvalid):
		logger.Warn("oauth token invalid", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Token could not be verified."})
	default:
		if errors.Is(err, domain.ErrUpstream) || errors.Is(err, domain.ErrLogoutInvalidationFailed) {
			logger.Error("auth request failed", zap.Error(err))
		} else {
			logger.Warn("auth request rejected", zap.Error(err))
		}
		middleware.RespondError(c, err)
	}
}

func (h *AuthHandler) log() *zap.Logger {
	if h.logger != nil {
		return h.logger
	}
	return zap.L()
}

func baseURL(r *http.Request) string {
	return schemeOnly(r) + "://" + r.Host
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}

func hostOnly(r *http.Request) string {
	host := r.Host
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}
