package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sadam21/gooddata-server-oauth2/internal/repository"
)

// RedisRevocationStore implements RevocationRepository backed by Redis.
// Each revocation is stored twice, once under the token id and once under the
// token hash, and both keys expire together with the token.
type RedisRevocationStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ repository.RevocationRepository = (*RedisRevocationStore)(nil)

// NewRedisRevocationStore constructs a Redis-backed revocation store.
func NewRedisRevocationStore(client redis.UniversalClient, keyPrefix string) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisRevocationStore) jtiKey(orgID, jwtID string) string {
	return fmt.Sprintf("%srevoked:jti:%s:%s", s.keyPrefix, orgID, jwtID)
}

func (s *RedisRevocationStore) hashKey(orgID, tokenHash string) string {
	return fmt.Sprintf("%srevoked:hash:%s:%s", s.keyPrefix, orgID, tokenHash)
}

// InvalidateJwt writes both revocation keys in a single MULTI/EXEC.
func (s *RedisRevocationStore) InvalidateJwt(ctx context.Context, orgID, subject, jwtID, tokenHash string, validTo time.Time) error {
	ttl := time.Until(validTo)
	if ttl <= 0 {
		// Already expired; validation rejects it on exp alone.
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.jtiKey(orgID, jwtID), subject, ttl)
		pipe.Set(ctx, s.hashKey(orgID, tokenHash), subject, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist revocation: %w", err)
	}
	return nil
}

// IsJwtInvalidated reports whether either the token id or the token hash is revoked.
func (s *RedisRevocationStore) IsJwtInvalidated(ctx context.Context, orgID, jwtID, tokenHash string) (bool, error) {
	n, err := s.client.Exists(ctx, s.jtiKey(orgID, jwtID), s.hashKey(orgID, tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("load revocation: %w", err)
	}
	return n > 0, nil
}
