package registration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	"github.com/sadam21/gooddata-server-oauth2/internal/registration"
)

type fakeResolver struct {
	org   *domain.Organization
	err   error
	calls int
}

func (f *fakeResolver) Resolve(context.Context, string) (*domain.Organization, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	org := *f.org
	return &org, nil
}

func TestFindByRegistrationIDDerivesDexEndpoints(t *testing.T) {
	resolver := &fakeResolver{org: &domain.Organization{
		ID:                "org",
		Hostnames:         []string{"org.example.com"},
		OAuthClientID:     "client",
		OAuthClientSecret: "secret",
	}}
	repo := registration.NewRepository(resolver, "remote", "local", 10, time.Minute, nil)

	reg, err := repo.FindByRegistrationID(context.Background(), "org.example.com")
	require.NoError(t, err)
	require.Equal(t, "org.example.com", reg.RegistrationID)
	require.Equal(t, "org", reg.OrganizationID)
	require.Equal(t, "client", reg.ClientID)
	require.Equal(t, "secret", reg.ClientSecret)
	require.Equal(t, "remote/dex/auth", reg.AuthorizationURI)
	require.Equal(t, "local/dex/token", reg.TokenURI)
	require.Equal(t, "local/dex/userinfo", reg.UserInfoURI)
	require.Equal(t, "local/dex/keys", reg.JWKSetURI)
	require.Equal(t, "remote/dex", reg.IssuerURI)
	require.Equal(t, []string{"openid", "profile", "email"}, reg.Scopes)
	require.Equal(t, "https://org.example.com/login/oauth2/code/org.example.com", reg.RedirectURI("https://org.example.com/"))
}

func TestFindByOrganizationHonoursOverrides(t *testing.T) {
	repo := registration.NewRepository(&fakeResolver{}, "https://remote", "http://local", 10, time.Minute, nil)

	reg := repo.FindByOrganization(domain.Organization{
		ID:                    "org",
		OAuthIssuerLocation:   "https://idp.example.com",
		OAuthAuthorizationURI: "https://idp.example.com/authorize",
		OAuthTokenURI:         "https://idp.example.com/token",
		OAuthJWKSetURI:        "https://idp.example.com/jwks",
		OAuthScopes:           []string{"openid"},
	})
	require.Equal(t, "https://idp.example.com", reg.IssuerURI)
	require.Equal(t, "https://idp.example.com/authorize", reg.AuthorizationURI)
	require.Equal(t, "https://idp.example.com/token", reg.TokenURI)
	require.Equal(t, "http://local/dex/userinfo", reg.UserInfoURI)
	require.Equal(t, "https://idp.example.com/jwks", reg.JWKSetURI)
	require.Equal(t, []string{"openid"}, reg.Scopes)
}

func TestFindByOrganizationRebuildsOnGenerationChange(t *testing.T) {
	repo := registration.NewRepository(&fakeResolver{}, "remote", "local", 10, time.Minute, nil)
	org := domain.Organization{ID: "org", OAuthClientID: "client"}

	first := repo.FindByOrganization(org)
	require.Equal(t, "client", first.ClientID)
	require.Equal(t, first, repo.FindByOrganization(org))

	org.OAuthClientID = "rotated-client"
	second := repo.FindByOrganization(org)
	require.Equal(t, "rotated-client", second.ClientID)
	require.NotEqual(t, first.Generation, second.Generation)
}

func TestFindByRegistrationIDNotFound(t *testing.T) {
	repo := registration.NewRepository(&fakeResolver{err: domain.ErrNotFound}, "remote", "local", 10, time.Minute, nil)

	_, err := repo.FindByRegistrationID(context.Background(), "missing.example.com")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindByRegistrationIDPropagatesHardErrors(t *testing.T) {
	boom := domain.NewUpstreamError("resolve org", errors.New("connection refused"))
	repo := registration.NewRepository(&fakeResolver{err: boom}, "remote", "local", 10, time.Minute, nil)

	_, err := repo.FindByRegistrationID(context.Background(), "org.example.com")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, domain.ErrUpstream)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}
