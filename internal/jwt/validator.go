package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

// Only asymmetric algorithms are accepted; the IdP never shares a secret with us.
var allowedAlgorithms = []gojose.SignatureAlgorithm{
	gojose.RS256, gojose.RS384, gojose.RS512,
	gojose.PS256, gojose.PS384, gojose.PS512,
	gojose.ES256, gojose.ES384, gojose.ES512,
	gojose.EdDSA,
}

// KeySource returns the key set of an organization.
type KeySource interface {
	KeySet(ctx context.Context, registration domain.ClientRegistration, forceRefresh bool) (*gojose.JSONWebKeySet, error)
}

// RegistrationFinder returns the client registration of an organization.
type RegistrationFinder interface {
	FindByOrganization(org domain.Organization) domain.ClientRegistration
}

// RevocationChecker reports whether a token was invalidated on logout.
type RevocationChecker interface {
	IsJwtInvalidated(ctx context.Context, orgID, jwtID, tokenHash string) (bool, error)
}

// Validator authenticates bearer JWTs issued by the organization's IdP.
type Validator struct {
	keys          KeySource
	registrations RegistrationFinder
	revocations   RevocationChecker
	leeway        time.Duration
	now           func() time.Time
	logger        *zap.Logger
	tracer        trace.Tracer
}

// NewValidator constructs a JWT validator. leeway is the tolerated clock skew.
func NewValidator(keys KeySource, registrations RegistrationFinder, revocations RevocationChecker, leeway time.Duration, logger *zap.Logger) *Validator {
	return &Validator{
		keys:          keys,
		registrations: registrations,
		revocations:   revocations,
		leeway:        leeway,
		now:           time.Now,
		logger:        logger,
		tracer:        otel.Tracer("github.com/sadam21/gooddata-server-oauth2/internal/jwt"),
	}
}

// WithClock replaces the validation clock.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Authenticate verifies raw and checks it against the revocation store.
// Rejections wrap domain.ErrUnauthenticated; revoked tokens return
// domain.ErrTokenRevoked.
func (v *Validator) Authenticate(ctx context.Context, org *domain.Organization, raw string) (*domain.VerifiedToken, error) {
	ctx, span := v.startSpan(ctx, "Validator.Authenticate")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", org.ID))

	registration := v.registrations.FindByOrganization(*org)
	token, err := v.verify(ctx, registration, raw, gojwt.Expected{})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if token.JWTID == "" {
		return nil, unauthenticated("missing jti claim", nil)
	}

	revoked, err := v.revocations.IsJwtInvalidated(ctx, org.ID, token.JWTID, TokenHash(raw))
	if err != nil {
		span.RecordError(err)
		return nil, domain.NewUpstreamError("check jwt revocation", err)
	}
	if revoked {
		v.log().Info("revoked jwt presented", zap.String("org_id", org.ID), zap.String("jti", token.JWTID))
		return nil, domain.ErrTokenRevoked
	}
	return token, nil
}

// VerifyIDToken verifies an OIDC ID token returned by the token endpoint.
func (v *Validator) VerifyIDToken(ctx context.Context, registration domain.ClientRegistration, raw, nonce string) (*domain.VerifiedToken, error) {
	ctx, span := v.startSpan(ctx, "Validator.VerifyIDToken")
	defer span.End()

	token, err := v.verify(ctx, registration, raw, gojwt.Expected{
		Issuer:      registration.IssuerURI,
		AnyAudience: gojwt.Audience{registration.ClientID},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if nonce != "" && token.StringClaim("nonce") != nonce {
		return nil, unauthenticated("nonce mismatch", nil)
	}
	return token, nil
}

func (v *Validator) verify(ctx context.Context, registration domain.ClientRegistration, raw string, expected gojwt.Expected) (*domain.VerifiedToken, error) {
	raw = strings.TrimSpace(raw)
	parsed, err := gojwt.ParseSigned(raw, allowedAlgorithms)
	if err != nil {
		return nil, unauthenticated("parse token", err)
	}
	kid := parsed.Headers[0].KeyID
	if kid == "" {
		return nil, unauthenticated("missing kid header", nil)
	}

	keys, err := v.lookupKey(ctx, registration, kid)
	if err != nil {
		return nil, err
	}

	var (
		std    gojwt.Claims
		claims map[string]any
	)
	var verifyErr error
	for _, key := range keys {
		if verifyErr = parsed.Claims(key.Key, &std, &claims); verifyErr == nil {
			break
		}
	}
	if verifyErr != nil {
		return nil, unauthenticated("verify signature", verifyErr)
	}

	if std.Expiry == nil {
		return nil, unauthenticated("missing exp claim", nil)
	}
	expected.Time = v.now()
	if err := std.ValidateWithLeeway(expected, v.leeway); err != nil {
		return nil, unauthenticated("validate claims", err)
	}

	token := &domain.VerifiedToken{
		Raw:      raw,
		Subject:  std.Subject,
		JWTID:    std.ID,
		Issuer:   std.Issuer,
		Audience: []string(std.Audience),
		Expiry:   std.Expiry.Time().UTC(),
		Claims:   claims,
	}
	if std.NotBefore != nil {
		token.NotBefore = std.NotBefore.Time().UTC()
	}
	if std.IssuedAt != nil {
		token.IssuedAt = std.IssuedAt.Time().UTC()
	}
	return token, nil
}

// lookupKey finds the keys matching kid, refreshing the key set once when the
// kid is unknown so IdP key rotation is picked up.
func (v *Validator) lookupKey(ctx context.Context, registration domain.ClientRegistration, kid string) ([]gojose.JSONWebKey, error) {
	set, err := v.keys.KeySet(ctx, registration, false)
	if err != nil {
		return nil, err
	}
	if keys := set.Key(kid); len(keys) > 0 {
		return keys, nil
	}

	v.log().Debug("unknown kid, refreshing jwks", zap.String("org_id", registration.OrganizationID), zap.String("kid", kid))
	set, err = v.keys.KeySet(ctx, registration, true)
	if err != nil {
		return nil, err
	}
	if keys := set.Key(kid); len(keys) > 0 {
		return keys, nil
	}
	return nil, unauthenticated("unknown signing key "+kid, nil)
}

func unauthenticated(reason string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, reason)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrUnauthenticated, reason, err)
}

// IsExpired reports whether err was caused by an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, gojwt.ErrExpired)
}

func (v *Validator) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if v == nil || v.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return v.tracer.Start(ctx, name)
}

func (v *Validator) log() *zap.Logger {
	if v != nil && v.logger != nil {
		return v.logger
	}
	return zap.L()
}
