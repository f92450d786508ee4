package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

// DBTX is the subset of pgxpool.Pool used by the repositories.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Compile-time interface assertions.
var (
	_ OrganizationRepository = (*PostgresOrgRepo)(nil)
	_ RevocationRepository   = (*PostgresRevocationRepo)(nil)
)

const getOrganizationByHostnameSQL = `
SELECT o.id, o.oauth_client_id, o.oauth_client_secret, o.oauth_issuer_id,
       o.oauth_issuer_location, o.oauth_authorization_uri, o.oauth_token_uri,
       o.oauth_userinfo_uri, o.oauth_jwk_set_uri, o.oauth_scopes, o.updated_at,
       ARRAY(SELECT h2.hostname FROM organization_hostnames h2
             WHERE h2.organization_id = o.id ORDER BY h2.hostname) AS hostnames
FROM organization_hostnames h
JOIN organizations o ON o.id = h.organization_id
WHERE h.hostname = $1`

const getCookieSecurityPropertiesSQL = `
SELECT o.cookie_rotation_interval_seconds, k.keyset, k.last_rotation
FROM organizations o
LEFT JOIN cookie_keysets k ON k.organization_id = o.id
WHERE o.id = $1`

const insertCookieKeysetSQL = `
INSERT INTO cookie_keysets (organization_id, keyset, last_rotation)
VALUES ($1, $2, $3)
ON CONFLICT (organization_id) DO NOTHING`

const rotateCookieKeysetSQL = `
UPDATE cookie_keysets
SET keyset = $2, last_rotation = $3
WHERE organization_id = $1 AND last_rotation = $4`

// PostgresOrgRepo implements OrganizationRepository on PostgreSQL.
type PostgresOrgRepo struct {
	db DBTX
}

func NewPostgresOrgRepo(db DBTX) *PostgresOrgRepo {
	return &PostgresOrgRepo{db: db}
}

func (r *PostgresOrgRepo) GetOrganizationByHostname(ctx context.Context, hostname string) (domain.Organization, error) {
	var org domain.Organization
	err := r.db.QueryRow(ctx, getOrganizationByHostnameSQL, hostname).Scan(
		&org.ID,
		&org.OAuthClientID,
		&org.OAuthClientSecret,
		&org.OAuthIssuerID,
		&org.OAuthIssuerLocation,
		&org.OAuthAuthorizationURI,
		&org.OAuthTokenURI,
		&org.OAuthUserInfoURI,
		&org.OAuthJWKSetURI,
		&org.OAuthScopes,
		&org.UpdatedAt,
		&org.Hostnames,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Organization{}, domain.ErrNotFound
		}
		return domain.Organization{}, fmt.Errorf("get organization by hostname: %w", err)
	}
	return org, nil
}

func (r *PostgresOrgRepo) GetCookieSecurityProperties(ctx context.Context, orgID string) (domain.CookieSecurityProperties, error) {
	var (
		intervalSeconds int64
		keyset          []byte
		lastRotation    *time.Time
	)
	err := r.db.QueryRow(ctx, getCookieSecurityPropertiesSQL, orgID).Scan(&intervalSeconds, &keyset, &lastRotation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CookieSecurityProperties{}, domain.ErrNotFound
		}
		return domain.CookieSecurityProperties{}, fmt.Errorf("get cookie security properties: %w", err)
	}

	props := domain.CookieSecurityProperties{
		Keyset:           keyset,
		RotationInterval: time.Duration(intervalSeconds) * time.Second,
	}
	if lastRotation != nil {
		props.LastRotation = lastRotation.UTC()
	}
	return props, nil
}

func (r *PostgresOrgRepo) RotateCookieSecurityProperties(ctx context.Context, orgID string, expectedLastRotation time.Time, next domain.CookieSecurityProperties) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expectedLastRotation.IsZero() {
		tag, err = r.db.Exec(ctx, insertCookieKeysetSQL, orgID, next.Keyset, next.LastRotation)
	} else {
		tag, err = r.db.Exec(ctx, rotateCookieKeysetSQL, orgID, next.Keyset, next.LastRotation, expectedLastRotation)
	}
	if err != nil {
		return false, fmt.Errorf("rotate cookie keyset: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const insertRevocationSQL = `
INSERT INTO jwt_revocations (id, organization_id, subject, jwt_id, token_hash, valid_to)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (organization_id, jwt_id) DO NOTHING`

const revocationExistsSQL = `
SELECT EXISTS (
  SELECT 1 FROM jwt_revocations
  WHERE organization_id = $1 AND (jwt_id = $2 OR token_hash = $3) AND valid_to > now()
)`

const pruneRevocationsSQL = `DELETE FROM jwt_revocations WHERE valid_to <= now()`

// PostgresRevocationRepo stores revocation records in PostgreSQL.
type PostgresRevocationRepo struct {
	db   DBTX
	node *snowflake.Node
}

func NewPostgresRevocationRepo(db DBTX, node *snowflake.Node) *PostgresRevocationRepo {
	return &PostgresRevocationRepo{db: db, node: node}
}

func (r *PostgresRevocationRepo) InvalidateJwt(ctx context.Context, orgID, subject, jwtID, tokenHash string, validTo time.Time) error {
	id := r.node.Generate().Int64()
	if _, err := r.db.Exec(ctx, insertRevocationSQL, id, orgID, subject, jwtID, tokenHash, validTo.UTC()); err != nil {
		return fmt.Errorf("insert jwt revocation: %w", err)
	}
	return nil
}

func (r *PostgresRevocationRepo) IsJwtInvalidated(ctx context.Context, orgID, jwtID, tokenHash string) (bool, error) {
	var revoked bool
	if err := r.db.QueryRow(ctx, revocationExistsSQL, orgID, jwtID, tokenHash).Scan(&revoked); err != nil {
		return false, fmt.Errorf("check jwt revocation: %w", err)
	}
	return revoked, nil
}

// PruneExpired deletes revocation records whose token has expired anyway.
func (r *PostgresRevocationRepo) PruneExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, pruneRevocationsSQL)
	if err != nil {
		return 0, fmt.Errorf("prune jwt revocations: %w", err)
	}
	return tag.RowsAffected(), nil
}
