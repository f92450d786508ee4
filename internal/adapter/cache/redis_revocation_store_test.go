package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sadam21/gooddata-server-oauth2/internal/adapter/cache"
)

func newStore(t *testing.T) (*cache.RedisRevocationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisRevocationStore(client, "test:"), mr
}

func TestRedisRevocationStoreInvalidate(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.InvalidateJwt(ctx, "org", "alice", "abc", "hash", time.Now().Add(time.Hour)))

	require.True(t, mr.Exists("test:revoked:jti:org:abc"))
	require.True(t, mr.Exists("test:revoked:hash:org:hash"))
	got, err := mr.Get("test:revoked:jti:org:abc")
	require.NoError(t, err)
	require.Equal(t, "alice", got)
	require.Greater(t, mr.TTL("test:revoked:jti:org:abc"), 59*time.Minute)

	revoked, err := store.IsJwtInvalidated(ctx, "org", "abc", "other")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = store.IsJwtInvalidated(ctx, "org", "other", "hash")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = store.IsJwtInvalidated(ctx, "another-org", "abc", "hash")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisRevocationStoreExpiresWithToken(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.InvalidateJwt(ctx, "org", "alice", "abc", "hash", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	revoked, err := store.IsJwtInvalidated(ctx, "org", "abc", "hash")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRedisRevocationStoreSkipsExpiredToken(t *testing.T) {
	store, mr := newStore(t)

	require.NoError(t, store.InvalidateJwt(context.Background(), "org", "alice", "abc", "hash", time.Now().Add(-time.Minute)))
	require.Empty(t, mr.Keys())
}

func TestRedisRevocationStoreUnavailable(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	err := store.InvalidateJwt(context.Background(), "org", "alice", "abc", "hash", time.Now().Add(time.Hour))
	require.ErrorContains(t, err, "persist revocation")

	_, err = store.IsJwtInvalidated(context.Background(), "org", "abc", "hash")
	require.ErrorContains(t, err, "load revocation")
}
