package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Organization is an immutable tenant snapshot returned by the authentication store.
type Organization struct {
	ID                    string
	Hostnames             []string
	OAuthClientID         string
	OAuthClientSecret     string
	OAuthIssuerID         string
	OAuthIssuerLocation   string
	OAuthAuthorizationURI string
	OAuthTokenURI         string
	OAuthUserInfoURI      string
	OAuthJWKSetURI        string
	OAuthScopes           []string
	UpdatedAt             time.Time
}

// Generation fingerprints the fields a client registration is derived from.
func (o Organization) Generation() string {
	h := sha256.New()
	for _, part := range []string{
		o.ID,
		o.OAuthClientID,
		o.OAuthClientSecret,
		o.OAuthIssuerID,
		o.OAuthIssuerLocation,
		o.OAuthAuthorizationURI,
		o.OAuthTokenURI,
		o.OAuthUserInfoURI,
		o.OAuthJWKSetURI,
		strings.Join(o.OAuthScopes, " "),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HasHostname reports whether host belongs to the organization.
func (o Organization) HasHostname(host string) bool {
	for _, candidate := range o.Hostnames {
		if strings.EqualFold(candidate, host) {
			return true
		}
	}
	return false
}

// CookieSecurityProperties holds the per-organization cookie keyset.
// Keyset is the serialized keyset and is opaque outside the cookie package.
type CookieSecurityProperties struct {
	Keyset           []byte
	LastRotation     time.Time
	RotationInterval time.Duration
}

// RotationDue reports whether the primary key is old enough to be replaced.
func (p CookieSecurityProperties) RotationDue(now time.Time) bool {
	if len(p.Keyset) == 0 {
		return true
	}
	if p.RotationInterval <= 0 {
		return false
	}
	return !now.Before(p.LastRotation.Add(p.RotationInterval))
}

// ClientRegistration is the OAuth2 client configuration derived for one organization.
type ClientRegistration struct {
	RegistrationID      string
	OrganizationID      string
	ClientID            string
	ClientSecret        string
	AuthorizationURI    string
	TokenURI            string
	UserInfoURI         string
	JWKSetURI           string
	IssuerURI           string
	RedirectURITemplate string
	Scopes              []string
	Generation          string
}

// RedirectURI expands the redirect template for the given base URL.
func (r ClientRegistration) RedirectURI(baseURL string) string {
	out := strings.ReplaceAll(r.RedirectURITemplate, "{baseUrl}", strings.TrimRight(baseURL, "/"))
	return strings.ReplaceAll(out, "{registrationId}", r.RegistrationID)
}
