package repository

//go:generate mockgen -destination=mock_store.go -package=repository . AuthenticationStore

import (
	"context"
	"time"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

// OrganizationRepository exposes tenant lookups and keyset persistence.
type OrganizationRepository interface {
	// GetOrganizationByHostname returns domain.ErrNotFound when no tenant owns the host.
	GetOrganizationByHostname(ctx context.Context, hostname string) (domain.Organization, error)
	GetCookieSecurityProperties(ctx context.Context, orgID string) (domain.CookieSecurityProperties, error)
	// RotateCookieSecurityProperties stores next only if the persisted last
	// rotation still equals expectedLastRotation. A zero expectedLastRotation
	// means no keyset has been stored yet. It reports whether the write won.
	RotateCookieSecurityProperties(ctx context.Context, orgID string, expectedLastRotation time.Time, next domain.CookieSecurityProperties) (bool, error)
}

// RevocationRepository records and checks invalidated JWTs.
type RevocationRepository interface {
	InvalidateJwt(ctx context.Context, orgID, subject, jwtID, tokenHash string, validTo time.Time) error
	IsJwtInvalidated(ctx context.Context, orgID, jwtID, tokenHash string) (bool, error)
}

// AuthenticationStore is the narrow client of the external tenant store.
type AuthenticationStore interface {
	OrganizationRepository
	RevocationRepository
}
