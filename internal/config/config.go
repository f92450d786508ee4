package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"gooddata-oauth2-server"`

	DatabaseURL     string `env:"DATABASE_URL,required,notEmpty"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix  string `env:"REDIS_KEY_PREFIX" envDefault:"oauth2:"`
	RevocationStore string `env:"REVOCATION_STORE" envDefault:"redis"`

	// RevocationPruneInterval applies to the postgres revocation store only.
	RevocationPruneInterval time.Duration `env:"REVOCATION_PRUNE_INTERVAL" envDefault:"1h"`
	NodeID                  int64         `env:"NODE_ID" envDefault:"1"`

	// Dex is reached through the public remote address by browsers and
	// through the local address by this server.
	AuthServerRemoteAddress string `env:"AUTH_SERVER_REMOTE_ADDRESS,required,notEmpty"`
	AuthServerLocalAddress  string `env:"AUTH_SERVER_LOCAL_ADDRESS,required,notEmpty"`

	CookieDuration            time.Duration `env:"COOKIE_DURATION" envDefault:"24h"`
	CookieSameSiteRaw         string        `env:"COOKIE_SAME_SITE" envDefault:"lax"`
	CookieSameSite            http.SameSite
	CookieKeysetCacheDuration time.Duration `env:"COOKIE_KEYSET_CACHE_DURATION" envDefault:"24h"`
	CookieKeysetCacheSize     int           `env:"COOKIE_KEYSET_CACHE_SIZE" envDefault:"500"`

	OrgCacheSize                int           `env:"ORG_CACHE_SIZE" envDefault:"500"`
	OrgCacheTTL                 time.Duration `env:"ORG_CACHE_TTL" envDefault:"1m"`
	ClientRegistrationCacheSize int           `env:"CLIENT_REGISTRATION_CACHE_SIZE" envDefault:"500"`
	ClientRegistrationCacheTTL  time.Duration `env:"CLIENT_REGISTRATION_CACHE_TTL" envDefault:"30m"`
	JWKCacheMaxSize             int           `env:"JWK_CACHE_MAX_SIZE" envDefault:"500"`
	JWKCacheExpireAfterWrite    time.Duration `env:"JWK_CACHE_EXPIRE_AFTER_WRITE" envDefault:"30m"`
	JWKMinRefreshInterval       time.Duration `env:"JWK_MIN_REFRESH_INTERVAL" envDefault:"30s"`
	JWTClockSkew                time.Duration `env:"JWT_CLOCK_SKEW" envDefault:"1m"`
	IdPHTTPTimeout              time.Duration `env:"IDP_HTTP_TIMEOUT" envDefault:"10s"`

	LogoutRedirectURI string `env:"LOGOUT_REDIRECT_URI" envDefault:"/"`

	RateLimitRPM         int      `env:"RATE_LIMIT_RPM" envDefault:"600"`
	TelemetryEndpoint    string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TelemetryInsecure    bool     `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TelemetrySampleRatio float64  `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	CORSAllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	CORSAllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Authorization,Content-Type"`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
}

// Load reads configuration from the environment, honouring a local .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	sameSite, err := parseSameSite(c.CookieSameSiteRaw)
	if err != nil {
		return err
	}
	c.CookieSameSite = sameSite

	for key, addr := range map[string]*string{
		"AUTH_SERVER_REMOTE_ADDRESS": &c.AuthServerRemoteAddress,
		"AUTH_SERVER_LOCAL_ADDRESS":  &c.AuthServerLocalAddress,
	} {
		trimmed := strings.TrimRight(strings.TrimSpace(*addr), "/")
		if _, err := url.Parse(trimmed); err != nil {
			return fmt.Errorf("%s must be a valid URL: %w", key, err)
		}
		*addr = trimmed
	}

	switch c.RevocationStore {
	case "redis", "postgres":
	default:
		return fmt.Errorf("REVOCATION_STORE must be redis or postgres, got %q", c.RevocationStore)
	}

	if c.CookieDuration <= 0 {
		return fmt.Errorf("COOKIE_DURATION must be positive")
	}
	if c.JWKCacheMaxSize < 1 {
		c.JWKCacheMaxSize = 1
	}
	if strings.TrimSpace(c.LogoutRedirectURI) == "" {
		c.LogoutRedirectURI = "/"
	}
	return nil
}

func parseSameSite(raw string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("COOKIE_SAME_SITE must be lax, strict or none, got %q", raw)
	}
}
