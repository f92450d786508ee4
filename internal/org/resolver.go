package org

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	"github.com/sadam21/gooddata-server-oauth2/internal/repository"
)

const defaultCacheSize = 500

// Resolver maps request hostnames to organizations.
// Lookups for the same hostname are coalesced and successful results are
// cached for a short time.
type Resolver struct {
	store  repository.OrganizationRepository
	cache  *expirable.LRU[string, domain.Organization]
	group  singleflight.Group
	logger *zap.Logger
	tracer trace.Tracer
}

// NewResolver creates an org resolver. A zero ttl disables caching.
func NewResolver(store repository.OrganizationRepository, size int, ttl time.Duration, logger *zap.Logger) *Resolver {
	r := &Resolver{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("github.com/sadam21/gooddata-server-oauth2/internal/org"),
	}
	if ttl > 0 {
		if size <= 0 {
			size = defaultCacheSize
		}
		r.cache = expirable.NewLRU[string, domain.Organization](size, nil, ttl)
	}
	return r
}

// Resolve loads the organization owning host.
func (r *Resolver) Resolve(ctx context.Context, host string) (*domain.Organization, error) {
	ctx, span := r.startSpan(ctx, "Resolver.Resolve")
	defer span.End()

	cleaned := NormalizeHost(host)
	if cleaned == "" {
		r.log().Warn("org resolver received empty host")
		return nil, fmt.Errorf("resolve org: empty host: %w", domain.ErrNotFound)
	}
	span.SetAttributes(attribute.String("org.host", cleaned))

	if org, ok := r.cached(cleaned); ok {
		return &org, nil
	}

	org, err := r.resolveShared(ctx, cleaned)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &org, nil
}

func (r *Resolver) resolveShared(ctx context.Context, host string) (domain.Organization, error) {
	org, shared, err := r.do(ctx, host)
	// A follower inherits the leader's context. If the leader was cancelled
	// while this caller is still live, run the lookup again as leader.
	if err != nil && shared && isContextError(err) && ctx.Err() == nil {
		org, _, err = r.do(ctx, host)
	}
	return org, err
}

func (r *Resolver) do(ctx context.Context, host string) (domain.Organization, bool, error) {
	v, err, shared := r.group.Do(host, func() (any, error) {
		if org, ok := r.cached(host); ok {
			return org, nil
		}
		org, err := r.store.GetOrganizationByHostname(ctx, host)
		if err != nil {
			return domain.Organization{}, r.classify(host, err)
		}
		if r.cache != nil {
			r.cache.Add(host, org)
		}
		r.log().Debug("org resolved", zap.String("host", host), zap.String("org_id", org.ID))
		return org, nil
	})
	if err != nil {
		return domain.Organization{}, shared, err
	}
	return v.(domain.Organization), shared, nil
}

func (r *Resolver) classify(host string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		r.log().Info("org not found", zap.String("host", host))
		return fmt.Errorf("resolve org %q: %w", host, domain.ErrNotFound)
	case isContextError(err):
		return fmt.Errorf("resolve org: %w", err)
	default:
		r.log().Error("failed to resolve org", zap.String("host", host), zap.Error(err))
		return domain.NewUpstreamError("resolve org", err)
	}
}

func (r *Resolver) cached(host string) (domain.Organization, bool) {
	if r.cache == nil {
		return domain.Organization{}, false
	}
	return r.cache.Get(host)
}

// Invalidate drops a cached hostname so the next lookup reaches the store.
func (r *Resolver) Invalidate(host string) {
	if r.cache != nil {
		r.cache.Remove(NormalizeHost(host))
	}
}

// NormalizeHost lower-cases host and strips any port.
func NormalizeHost(host string) string {
	cleaned := strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(cleaned); err == nil {
		cleaned = h
	}
	return strings.TrimSuffix(strings.Trim(cleaned, "[]"), ".")
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Resolver) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if r == nil || r.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name)
}

func (r *Resolver) log() *zap.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return zap.L()
}
