package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/sadam21/gooddata-server-oauth2/internal/adapter/cache"
	oauthadapter "github.com/sadam21/gooddata-server-oauth2/internal/adapter/oauth"
	"github.com/sadam21/gooddata-server-oauth2/internal/config"
	"github.com/sadam21/gooddata-server-oauth2/internal/cookie"
	httptransport "github.com/sadam21/gooddata-server-oauth2/internal/http"
	"github.com/sadam21/gooddata-server-oauth2/internal/http/handler"
	httpmiddleware "github.com/sadam21/gooddata-server-oauth2/internal/http/middleware"
	"github.com/sadam21/gooddata-server-oauth2/internal/jwt"
	"github.com/sadam21/gooddata-server-oauth2/internal/logout"
	apimiddleware "github.com/sadam21/gooddata-server-oauth2/internal/middleware"
	"github.com/sadam21/gooddata-server-oauth2/internal/org"
	"github.com/sadam21/gooddata-server-oauth2/internal/registration"
	"github.com/sadam21/gooddata-server-oauth2/internal/repository"
	"github.com/sadam21/gooddata-server-oauth2/internal/server"
	"github.com/sadam21/gooddata-server-oauth2/internal/service"
	"github.com/sadam21/gooddata-server-oauth2/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newOrgRepository,
			newRevocationRepository,
			newAuthenticationStore,
			newOrgResolver,
			newClientRegistrations,
			newCookieCrypto,
			newCookieSerializer,
			newCookieService,
			newProviderClient,
			newKeySetProvider,
			newValidator,
			newLogoutHandler,
			newLoginService,
			newAuthHandler,
			newAuthMiddleware,
			newRateLimiter,
			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startRevocationPruner, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newOrgRepository(pool *pgxpool.Pool) repository.OrganizationRepository {
	return repository.NewPostgresOrgRepo(pool)
}

// newRevocationRepository picks the revocation backend. Redis is only dialed
// when it is the configured store.
func newRevocationRepository(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool, node *snowflake.Node) (repository.RevocationRepository, error) {
	if cfg.RevocationStore == "postgres" {
		return repository.NewPostgresRevocationRepo(pool, node), nil
	}
	client, err := newRedisClient(lc, cfg)
	if err != nil {
		return nil, err
	}
	return cacheadapter.NewRedisRevocationStore(client, cfg.RedisKeyPrefix), nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newAuthenticationStore(orgs repository.OrganizationRepository, revocations repository.RevocationRepository) repository.AuthenticationStore {
	return repository.NewStore(orgs, revocations)
}

func newOrgResolver(store repository.AuthenticationStore, cfg config.Config, logger *zap.Logger) *org.Resolver {
	return org.NewResolver(store, cfg.OrgCacheSize, cfg.OrgCacheTTL, logger)
}

func newClientRegistrations(resolver *org.Resolver, cfg config.Config, logger *zap.Logger) *registration.Repository {
	return registration.NewRepository(
		resolver,
		cfg.AuthServerRemoteAddress,
		cfg.AuthServerLocalAddress,
		cfg.ClientRegistrationCacheSize,
		cfg.ClientRegistrationCacheTTL,
		logger,
	)
}

func newCookieCrypto(store repository.AuthenticationStore, cfg config.Config, logger *zap.Logger) *cookie.CryptoService {
	return cookie.NewCryptoService(store, cfg.CookieKeysetCacheSize, cfg.CookieKeysetCacheDuration, logger)
}

func newCookieSerializer(resolver *org.Resolver, crypto *cookie.CryptoService, logger *zap.Logger) *cookie.Serializer {
	return cookie.NewSerializer(resolver, crypto, logger)
}

func newCookieService(serializer *cookie.Serializer, cfg config.Config, logger *zap.Logger) *cookie.Service {
	return cookie.NewService(serializer, cfg.CookieDuration, cfg.CookieSameSite, logger)
}

func newProviderClient(cfg config.Config) *oauthadapter.HTTPProviderClient {
	return oauthadapter.NewHTTPProviderClient(&http.Client{Timeout: cfg.IdPHTTPTimeout})
}

func newKeySetProvider(client *oauthadapter.HTTPProviderClient, cfg config.Config, logger *zap.Logger) *jwt.KeySetProvider {
	cache := jwt.NewKeySetCache(cfg.JWKCacheMaxSize, cfg.JWKCacheExpireAfterWrite)
	return jwt.NewKeySetProvider(cache, client, logger, jwt.WithMinRefreshInterval(cfg.JWKMinRefreshInterval))
}

func newValidator(keys *jwt.KeySetProvider, registrations *registration.Repository, store repository.AuthenticationStore, cfg config.Config, logger *zap.Logger) *jwt.Validator {
	return jwt.NewValidator(keys, registrations, store, cfg.JWTClockSkew, logger)
}

func newLogoutHandler(resolver *org.Resolver, store repository.AuthenticationStore, cfg config.Config, logger *zap.Logger) *logout.Handler {
	return logout.NewHandler(resolver, store, cfg.LogoutRedirectURI, logger)
}

func newLoginService(registrations *registration.Repository, client *oauthadapter.HTTPProviderClient, validator *jwt.Validator, cfg config.Config, logger *zap.Logger) *service.LoginService {
	return service.NewLoginService(registrations, client, validator, cfg.CookieDuration, logger)
}

func newAuthHandler(login *service.LoginService, cookies *cookie.Service, logoutHandler *logout.Handler, logger *zap.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(login, cookies, logoutHandler, logger)
}

func newAuthMiddleware(validator *jwt.Validator, cookies *cookie.Service, logger *zap.Logger) *httpmiddleware.Auth {
	return httpmiddleware.NewAuth(validator, cookies, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, resolver *org.Resolver, rateLimiter *apimiddleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	return httptransport.NewRouter(cfg, authHandler, authMiddleware, resolver, rateLimiter, logger)
}

type revocationPruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// startRevocationPruner removes expired rows from the postgres revocation
// table. Redis expires its keys on its own.
func startRevocationPruner(lc fx.Lifecycle, revocations repository.RevocationRepository, cfg config.Config, logger *zap.Logger) {
	pruner, ok := revocations.(revocationPruner)
	if !ok || cfg.RevocationPruneInterval <= 0 {
		return
	}

	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				defer close(done)
				ticker := time.NewTicker(cfg.RevocationPruneInterval)
				defer ticker.Stop()
				for {
					select {
					case <-runCtx.Done():
						return
					case <-ticker.C:
						removed, err := pruner.PruneExpired(runCtx)
						if err != nil {
							logger.Warn("prune jwt revocations failed", zap.Error(err))
							continue
						}
						logger.Debug("pruned jwt revocations", zap.Int64("removed", removed))
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
