package registration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	"github.com/sadam21/gooddata-server-oauth2/internal/org"
)

// RedirectURITemplate is expanded by ClientRegistration.RedirectURI.
const RedirectURITemplate = "{baseUrl}/login/oauth2/code/{registrationId}"

const defaultCacheSize = 500

// Default dex endpoint paths relative to the auth server addresses.
const (
	authorizationPath = "/dex/auth"
	tokenPath         = "/dex/token"
	userInfoPath      = "/dex/userinfo"
	jwkSetPath        = "/dex/keys"
	issuerPath        = "/dex"
)

var defaultScopes = []string{"openid", "profile", "email"}

// OrgResolver resolves hostnames to organizations.
type OrgResolver interface {
	Resolve(ctx context.Context, host string) (*domain.Organization, error)
}

// Repository derives OAuth2 client registrations from organizations.
// The registration id of a request is its hostname.
type Repository struct {
	resolver      OrgResolver
	remoteAddress string
	localAddress  string
	cache         *expirable.LRU[string, domain.ClientRegistration]
	logger        *zap.Logger
}

// NewRepository builds a registration repository. remoteAddress is the auth
// server address reachable by browsers, localAddress the one reachable by
// this server.
func NewRepository(resolver OrgResolver, remoteAddress, localAddress string, size int, ttl time.Duration, logger *zap.Logger) *Repository {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Repository{
		resolver:      resolver,
		remoteAddress: strings.TrimRight(remoteAddress, "/"),
		localAddress:  strings.TrimRight(localAddress, "/"),
		cache:         expirable.NewLRU[string, domain.ClientRegistration](size, nil, ttl),
		logger:        logger,
	}
}

// FindByRegistrationID resolves the organization owning registrationID and
// returns its client registration.
func (r *Repository) FindByRegistrationID(ctx context.Context, registrationID string) (*domain.ClientRegistration, error) {
	resolved, err := r.resolver.Resolve(ctx, registrationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.log().Info("client registration not found", zap.String("registration_id", registrationID))
		}
		return nil, err
	}
	reg := r.FindByOrganization(*resolved)
	reg.RegistrationID = org.NormalizeHost(registrationID)
	return &reg, nil
}

// FindByOrganization returns the cached registration for org, rebuilding it
// when the organization changed since it was cached.
func (r *Repository) FindByOrganization(organization domain.Organization) domain.ClientRegistration {
	generation := organization.Generation()
	if cached, ok := r.cache.Get(organization.ID); ok && cached.Generation == generation {
		return cached
	}
	reg := r.build(organization, generation)
	r.cache.Add(organization.ID, reg)
	r.log().Debug("client registration built", zap.String("org_id", organization.ID), zap.String("generation", generation))
	return reg
}

func (r *Repository) build(o domain.Organization, generation string) domain.ClientRegistration {
	registrationID := o.ID
	if len(o.Hostnames) > 0 {
		registrationID = o.Hostnames[0]
	}
	scopes := o.OAuthScopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return domain.ClientRegistration{
		RegistrationID:      registrationID,
		OrganizationID:      o.ID,
		ClientID:            o.OAuthClientID,
		ClientSecret:        o.OAuthClientSecret,
		AuthorizationURI:    firstNonEmpty(o.OAuthAuthorizationURI, r.remoteAddress+authorizationPath),
		TokenURI:            firstNonEmpty(o.OAuthTokenURI, r.localAddress+tokenPath),
		UserInfoURI:         firstNonEmpty(o.OAuthUserInfoURI, r.localAddress+userInfoPath),
		JWKSetURI:           firstNonEmpty(o.OAuthJWKSetURI, r.localAddress+jwkSetPath),
		IssuerURI:           firstNonEmpty(o.OAuthIssuerLocation, r.remoteAddress+issuerPath),
		RedirectURITemplate: RedirectURITemplate,
		Scopes:              append([]string(nil), scopes...),
		Generation:          generation,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (r *Repository) log() *zap.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return zap.L()
}

