package logout

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	"github.com/sadam21/gooddata-server-oauth2/internal/jwt"
)

// OrgResolver resolves hostnames to organizations.
type OrgResolver interface {
	Resolve(ctx context.Context, host string) (*domain.Organization, error)
}

// Invalidator records a revoked JWT.
type Invalidator interface {
	InvalidateJwt(ctx context.Context, orgID, subject, jwtID, tokenHash string, validTo time.Time) error
}

// Handler invalidates the bearer JWT of a request on logout. Requests
// authenticated any other way need no server side invalidation.
type Handler struct {
	resolver    OrgResolver
	store       Invalidator
	redirectURI string
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewHandler constructs a logout handler redirecting to redirectURI on success.
func NewHandler(resolver OrgResolver, store Invalidator, redirectURI string, logger *zap.Logger) *Handler {
	if redirectURI == "" {
		redirectURI = "/"
	}
	return &Handler{
		resolver:    resolver,
		store:       store,
		redirectURI: redirectURI,
		logger:      logger,
		tracer:      otel.Tracer("github.com/sadam21/gooddata-server-oauth2/internal/logout"),
		now:         time.Now,
	}
}

// Logout records the JWT of authentication as revoked until it expires.
// Any failure after the request was recognised as JWT authenticated is
// returned as *domain.LogoutError.
func (h *Handler) Logout(ctx context.Context, hostname string, authentication domain.Authentication) error {
	jwtAuth, ok := authentication.(*domain.JWTAuthentication)
	if !ok || jwtAuth == nil {
		return nil
	}

	ctx, span := h.startSpan(ctx, "Handler.Logout")
	defer span.End()

	org, err := h.resolver.Resolve(ctx, hostname)
	if err != nil {
		return h.fail(span, err)
	}
	span.SetAttributes(attribute.String("org.id", org.ID))

	token := jwtAuth.Token
	record, err := domain.NewRevocationRecord(org.ID, token, jwt.TokenHash(token.Raw), h.now())
	if err != nil {
		return h.fail(span, err)
	}

	if err := ctx.Err(); err != nil {
		return h.fail(span, err)
	}
	if err := h.store.InvalidateJwt(ctx, record.OrganizationID, record.Subject, record.JWTID, record.TokenHash, record.ValidTo); err != nil {
		return h.fail(span, err)
	}

	h.log().Info("audit",
		zap.String("event", "logout.jwt.invalidated"),
		zap.String("org_id", record.OrganizationID),
		zap.String("sub", record.Subject),
		zap.String("jti", record.JWTID),
		zap.Time("valid_to", record.ValidTo),
		zap.Time("revoked_at", record.CreatedAt),
	)
	return nil
}

// SuccessRedirect sends the browser to the post-logout location.
func (h *Handler) SuccessRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.redirectURI, http.StatusFound)
}

func (h *Handler) fail(span trace.Span, err error) error {
	span.RecordError(err)
	h.log().Warn("jwt logout failed", zap.Error(err))
	return &domain.LogoutError{Err: err}
}

func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h == nil || h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, name)
}

func (h *Handler) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}
