package repository_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	"github.com/sadam21/gooddata-server-oauth2/internal/repository"
)

func TestPostgresOrgRepoGetOrganizationByHostname(t *testing.T) {
	updated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{values: []any{
		"org", "client", "secret", "dex", "", "", "", "", "",
		[]string{"openid", "profile"}, updated, []string{"a.example.com", "org.example.com"},
	}}}
	repo := repository.NewPostgresOrgRepo(db)

	org, err := repo.GetOrganizationByHostname(context.Background(), "org.example.com")
	require.NoError(t, err)
	require.Equal(t, "org", org.ID)
	require.Equal(t, "client", org.OAuthClientID)
	require.Equal(t, "secret", org.OAuthClientSecret)
	require.Equal(t, []string{"openid", "profile"}, org.OAuthScopes)
	require.True(t, org.HasHostname("ORG.example.com"))
	require.Equal(t, []any{"org.example.com"}, db.lastArgs)
}

func TestPostgresOrgRepoGetOrganizationByHostnameErrors(t *testing.T) {
	repo := repository.NewPostgresOrgRepo(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := repo.GetOrganizationByHostname(context.Background(), "missing.example.com")
	require.ErrorIs(t, err, domain.ErrNotFound)

	boom := errors.New("connection refused")
	repo = repository.NewPostgresOrgRepo(&fakeDB{row: fakeRow{err: boom}})
	_, err = repo.GetOrganizationByHostname(context.Background(), "org.example.com")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresOrgRepoGetCookieSecurityProperties(t *testing.T) {
	rotated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo := repository.NewPostgresOrgRepo(&fakeDB{row: fakeRow{values: []any{int64(86400), []byte(`{"primaryKeyId":1}`), &rotated}}})

	props, err := repo.GetCookieSecurityProperties(context.Background(), "org")
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, props.RotationInterval)
	require.Equal(t, rotated, props.LastRotation)
	require.JSONEq(t, `{"primaryKeyId":1}`, string(props.Keyset))

	repo = repository.NewPostgresOrgRepo(&fakeDB{row: fakeRow{values: []any{int64(3600), []byte(nil), (*time.Time)(nil)}}})
	props, err = repo.GetCookieSecurityProperties(context.Background(), "org")
	require.NoError(t, err)
	require.Empty(t, props.Keyset)
	require.True(t, props.LastRotation.IsZero())
}

func TestPostgresOrgRepoRotateCookieSecurityProperties(t *testing.T) {
	ctx := context.Background()
	next := domain.CookieSecurityProperties{Keyset: []byte(`{}`), LastRotation: time.Now().UTC()}

	db := &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")}
	ok, err := repository.NewPostgresOrgRepo(db).RotateCookieSecurityProperties(ctx, "org", time.Time{}, next)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.Contains(db.lastSQL, "INSERT INTO cookie_keysets"))

	previous := next.LastRotation.Add(-time.Hour)
	db = &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	ok, err = repository.NewPostgresOrgRepo(db).RotateCookieSecurityProperties(ctx, "org", previous, next)
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, strings.Contains(db.lastSQL, "UPDATE cookie_keysets"))
	require.Equal(t, previous, db.lastArgs[3])
}

func TestPostgresRevocationRepo(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()
	validTo := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	db := &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1"), row: fakeRow{values: []any{true}}}
	repo := repository.NewPostgresRevocationRepo(db, node)

	require.NoError(t, repo.InvalidateJwt(ctx, "org", "alice", "abc", "hash", validTo))
	require.Len(t, db.lastArgs, 6)
	require.IsType(t, int64(0), db.lastArgs[0])
	require.Equal(t, []any{"org", "alice", "abc", "hash", validTo}, db.lastArgs[1:])

	revoked, err := repo.IsJwtInvalidated(ctx, "org", "abc", "hash")
	require.NoError(t, err)
	require.True(t, revoked)

	db.execErr = errors.New("read only transaction")
	require.ErrorContains(t, repo.InvalidateJwt(ctx, "org", "alice", "abc", "hash", validTo), "insert jwt revocation")
}

type fakeDB struct {
	row      fakeRow
	tag      pgconn.CommandTag
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	f.lastArgs = args
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return f.tag, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArgs = args
	return f.row
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		switch target := d.(type) {
		case *string:
			*target = r.values[i].(string)
		case *[]string:
			*target = r.values[i].([]string)
		case *int64:
			*target = r.values[i].(int64)
		case *bool:
			*target = r.values[i].(bool)
		case *[]byte:
			*target = r.values[i].([]byte)
		case *time.Time:
			*target = r.values[i].(time.Time)
		case **time.Time:
			*target = r.values[i].(*time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}
