package jwt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

// DefaultMinRefreshInterval bounds how often an organization's key set is
// re-downloaded because a token named an unknown kid.
const DefaultMinRefreshInterval = 30 * time.Second

// KeySetFetcher downloads a JSON Web Key Set.
type KeySetFetcher interface {
	FetchKeySet(ctx context.Context, jwkSetURI string) (*jose.JSONWebKeySet, error)
}

// KeySetProvider serves IdP key sets from the cache, downloading them on a
// miss. Downloads for the same registration are coalesced.
type KeySetProvider struct {
	cache              *KeySetCache
	fetcher            KeySetFetcher
	group              singleflight.Group
	minRefreshInterval time.Duration
	now                func() time.Time
	logger             *zap.Logger

	mu          sync.Mutex
	lastRefresh map[string]time.Time
}

// KeySetOption customises a KeySetProvider.
type KeySetOption func(*KeySetProvider)

// WithMinRefreshInterval sets the minimum time between forced refreshes of
// one registration's key set. Zero disables the limit.
func WithMinRefreshInterval(d time.Duration) KeySetOption {
	return func(p *KeySetProvider) { p.minRefreshInterval = d }
}

// WithKeySetClock overrides the clock used for refresh limiting.
func WithKeySetClock(now func() time.Time) KeySetOption {
	return func(p *KeySetProvider) { p.now = now }
}

// NewKeySetProvider constructs a key set provider.
func NewKeySetProvider(cache *KeySetCache, fetcher KeySetFetcher, logger *zap.Logger, opts ...KeySetOption) *KeySetProvider {
	p := &KeySetProvider{
		cache:              cache,
		fetcher:            fetcher,
		minRefreshInterval: DefaultMinRefreshInterval,
		now:                time.Now,
		logger:             logger,
		lastRefresh:        map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// KeySet returns the key set of the registration. forceRefresh bypasses the
// cache unless the registration was force-refreshed within the minimum
// refresh interval.
func (p *KeySetProvider) KeySet(ctx context.Context, registration domain.ClientRegistration, forceRefresh bool) (*jose.JSONWebKeySet, error) {
	key := cacheKey(registration)
	if !forceRefresh || !p.allowRefresh(key) {
		if set, ok := p.cache.Get(key); ok {
			return set, nil
		}
	}

	set, shared, err := p.download(ctx, key, registration)
	// A shared download runs on the leader's context. When only the leader
	// was cancelled, download again on our own.
	if err != nil && shared && isContextError(err) && ctx.Err() == nil {
		set, _, err = p.download(ctx, key, registration)
	}
	return set, err
}

func (p *KeySetProvider) download(ctx context.Context, key string, registration domain.ClientRegistration) (*jose.JSONWebKeySet, bool, error) {
	v, err, shared := p.group.Do(key, func() (any, error) {
		set, err := p.fetcher.FetchKeySet(ctx, registration.JWKSetURI)
		if err != nil {
			if isContextError(err) {
				return nil, fmt.Errorf("download jwks: %w", err)
			}
			p.log().Error("failed to download jwks", zap.String("org_id", registration.OrganizationID), zap.String("uri", registration.JWKSetURI), zap.Error(err))
			return nil, domain.NewUpstreamError("download jwks", err)
		}
		p.cache.Put(key, set)
		p.log().Debug("jwks downloaded", zap.String("org_id", registration.OrganizationID), zap.Int("keys", len(set.Keys)))
		return set, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*jose.JSONWebKeySet), shared, nil
}

// allowRefresh records a forced refresh of key and reports whether it may
// go upstream.
func (p *KeySetProvider) allowRefresh(key string) bool {
	if p.minRefreshInterval <= 0 {
		return true
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, at := range p.lastRefresh {
		if now.Sub(at) >= p.minRefreshInterval {
			delete(p.lastRefresh, k)
		}
	}
	if _, ok := p.lastRefresh[key]; ok {
		p.log().Debug("jwks refresh throttled", zap.String("key", key))
		return false
	}
	p.lastRefresh[key] = now
	return true
}

// cacheKey scopes cached key sets to the registration generation, so a
// changed JWKS URI is never served from a stale entry.
func cacheKey(registration domain.ClientRegistration) string {
	return registration.OrganizationID + "|" + registration.Generation
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (p *KeySetProvider) log() *zap.Logger {
	if p != nil && p.logger != nil {
		return p.logger
	}
	return zap.L()
}
