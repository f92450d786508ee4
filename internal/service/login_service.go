package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	oauthadapter "github.com/sadam21/gooddata-server-oauth2/internal/adapter/oauth"
	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	domainoauth "github.com/sadam21/gooddata-server-oauth2/internal/domain/oauth"
)

// Claims copied from the ID token into the session principal.
var principalClaims = []string{"name", "email", "email_verified", "preferred_username", "groups"}

// RegistrationFinder looks up the client registration of a hostname.
type RegistrationFinder interface {
	FindByRegistrationID(ctx context.Context, registrationID string) (*domain.ClientRegistration, error)
}

// IDTokenVerifier verifies ID tokens returned by the token endpoint.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, registration domain.ClientRegistration, raw, nonce string) (*domain.VerifiedToken, error)
}

// StartAuthorizationInput contains parameters for constructing authorization URLs.
type StartAuthorizationInput struct {
	Host     string
	BaseURL  string
	ReturnTo string
}

// StartAuthorizationOutput returns the authorization URL and the request to
// keep until the callback.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	Request          domainoauth.AuthorizationRequest
}

// CallbackInput captures callback query parameters and the stored request.
type CallbackInput struct {
	Host             string
	Code             string
	State            string
	Error            string
	ErrorDescription string
	Request          *domainoauth.AuthorizationRequest
}

// CallbackOutput is the authenticated session and where to send the user.
type CallbackOutput struct {
	Principal domain.Principal
	ReturnTo  string
}

// LoginService runs the OIDC authorization code flow with PKCE against the
// identity provider of the request's organization.
type LoginService struct {
	registrations RegistrationFinder
	provider      oauthadapter.ProviderClient
	verifier      IDTokenVerifier
	sessionTTL    time.Duration
	now           func() time.Time
	logger        *zap.Logger
	tracer        trace.Tracer
}

// NewLoginService wires the login service.
func NewLoginService(registrations RegistrationFinder, provider oauthadapter.ProviderClient, verifier IDTokenVerifier, sessionTTL time.Duration, logger *zap.Logger) *LoginService {
	return &LoginService{
		registrations: registrations,
		provider:      provider,
		verifier:      verifier,
		sessionTTL:    sessionTTL,
		now:           time.Now,
		logger:        logger,
		tracer:        otel.Tracer("github.com/sadam21/gooddata-server-oauth2/internal/service"),
	}
}

// StartAuthorization prepares the redirect to the IdP authorization endpoint.
func (s *LoginService) StartAuthorization(ctx context.Context, in StartAuthorizationInput) (*StartAuthorizationOutput, error) {
	ctx, span := s.startSpan(ctx, "LoginService.StartAuthorization")
	defer span.End()

	if strings.TrimSpace(in.Host) == "" || strings.TrimSpace(in.BaseURL) == "" {
		return nil, domainoauth.ErrInvalidRequest
	}
	registration, err := s.registrations.FindByRegistrationID(ctx, in.Host)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("org.id", registration.OrganizationID))

	state, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	codeVerifier, err := secureRandomString(64)
	if err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}

	authURL, err := url.Parse(registration.AuthorizationURI)
	if err != nil {
		return nil, fmt.Errorf("parse authorization uri: %w", err)
	}
	redirectURI := registration.RedirectURI(in.BaseURL)

	params := authURL.Query()
	params.Set("client_id", registration.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", strings.Join(registration.Scopes, " "))
	params.Set("state", state)
	params.Set("nonce", nonce)
	params.Set("code_challenge", pkceChallenge(codeVerifier))
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()

	return &StartAuthorizationOutput{
		AuthorizationURL: authURL.String(),
		Request: domainoauth.AuthorizationRequest{
			Version:          domainoauth.AuthorizationRequestVersion,
			State:            state,
			Nonce:            nonce,
			CodeVerifier:     codeVerifier,
			RedirectURI:      redirectURI,
			ReturnTo:         SanitizeReturnTo(in.ReturnTo),
			RegistrationID:   registration.RegistrationID,
			ClientID:         registration.ClientID,
			AuthorizationURI: registration.AuthorizationURI,
			Scopes:           registration.Scopes,
			CreatedAt:        s.now().UTC(),
		},
	}, nil
}

// HandleCallback exchanges the authorization code and builds the session principal.
func (s *LoginService) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackOutput, error) {
	ctx, span := s.startSpan(ctx, "LoginService.HandleCallback")
	defer span.End()

	if in.Error != "" {
		return nil, fmt.Errorf("%w: %s %s", domainoauth.ErrAccessDenied, in.Error, in.ErrorDescription)
	}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.State) == "" {
		return nil, domainoauth.ErrInvalidRequest
	}
	request := in.Request
	if request == nil || subtle.ConstantTimeCompare([]byte(request.State), []byte(in.State)) != 1 {
		return nil, domainoauth.ErrInvalidState
	}

	registration, err := s.registrations.FindByRegistrationID(ctx, in.Host)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if request.RegistrationID != registration.RegistrationID || request.ClientID != registration.ClientID {
		return nil, domainoauth.ErrInvalidState
	}

	tokenResp, err := s.provider.ExchangeCode(ctx, *registration, in.Code, request.CodeVerifier, request.RedirectURI)
	if err != nil {
		span.RecordError(err)
		return nil, domain.NewUpstreamError("exchange code", err)
	}
	if strings.TrimSpace(tokenResp.IDToken) == "" {
		return nil, domainoauth.ErrTokenInvalid
	}

	idToken, err := s.verifier.VerifyIDToken(ctx, *registration, tokenResp.IDToken, request.Nonce)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	principal := s.buildPrincipal(*registration, idToken)
	if principal.Email == "" && tokenResp.AccessToken != "" {
		s.enrichFromUserInfo(ctx, *registration, tokenResp.AccessToken, &principal)
	}

	s.log().Info("audit",
		zap.String("event", "login.success"),
		zap.String("org_id", registration.OrganizationID),
		zap.String("sub", principal.Subject),
	)
	return &CallbackOutput{Principal: principal, ReturnTo: SanitizeReturnTo(request.ReturnTo)}, nil
}

func (s *LoginService) buildPrincipal(registration domain.ClientRegistration, idToken *domain.VerifiedToken) domain.Principal {
	now := s.now().UTC()
	claims := make(map[string]any, len(principalClaims))
	for _, name := range principalClaims {
		if v, ok := idToken.Claims[name]; ok {
			claims[name] = v
		}
	}
	return domain.Principal{
		Version:        domain.PrincipalVersion,
		Subject:        idToken.Subject,
		Name:           firstNonEmpty(idToken.StringClaim("name"), idToken.StringClaim("preferred_username")),
		Email:          idToken.StringClaim("email"),
		OrganizationID: registration.OrganizationID,
		RegistrationID: registration.RegistrationID,
		Claims:         claims,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.sessionTTL),
	}
}

func (s *LoginService) enrichFromUserInfo(ctx context.Context, registration domain.ClientRegistration, accessToken string, principal *domain.Principal) {
	info, err := s.provider.FetchUserInfo(ctx, registration, accessToken)
	if err != nil {
		s.log().Warn("failed to fetch userinfo", zap.String("org_id", registration.OrganizationID), zap.Error(err))
		return
	}
	if info.Subject != "" && info.Subject != principal.Subject {
		s.log().Warn("userinfo subject mismatch", zap.String("org_id", registration.OrganizationID))
		return
	}
	principal.Email = info.Email
	if principal.Name == "" {
		principal.Name = info.Name
	}
}

// SanitizeReturnTo only allows local absolute paths so the login flow cannot
// be used as an open redirect.
func SanitizeReturnTo(returnTo string) string {
	trimmed := strings.TrimSpace(returnTo)
	if !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/\\") {
		return "/"
	}
	return trimmed
}

// IsClientError reports whether err was caused by the caller rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, domainoauth.ErrInvalidRequest) ||
		errors.Is(err, domainoauth.ErrInvalidState) ||
		errors.Is(err, domainoauth.ErrAccessDenied)
}

func (s *LoginService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *LoginService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
