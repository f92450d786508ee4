package config_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sadam21/gooddata-server-oauth2/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/oauth2")
	t.Setenv("AUTH_SERVER_REMOTE_ADDRESS", "https://auth.example.com/")
	t.Setenv("AUTH_SERVER_LOCAL_ADDRESS", "http://dex:5556")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, "https://auth.example.com", cfg.AuthServerRemoteAddress)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.Equal(t, 24*time.Hour, cfg.CookieDuration)
	require.Equal(t, 500, cfg.JWKCacheMaxSize)
	require.Equal(t, 30*time.Minute, cfg.JWKCacheExpireAfterWrite)
	require.Equal(t, 30*time.Second, cfg.JWKMinRefreshInterval)
	require.Equal(t, "redis", cfg.RevocationStore)
	require.Equal(t, time.Hour, cfg.RevocationPruneInterval)
	require.Equal(t, int64(1), cfg.NodeID)
	require.Equal(t, 1.0, cfg.TelemetrySampleRatio)
	require.Equal(t, "/", cfg.LogoutRedirectURI)
	require.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.CORSAllowedMethods)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("COOKIE_SAME_SITE", "Strict")
	t.Setenv("JWK_CACHE_MAX_SIZE", "10")
	t.Setenv("JWK_CACHE_EXPIRE_AFTER_WRITE", "5m")
	t.Setenv("REVOCATION_STORE", "postgres")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, http.SameSiteStrictMode, cfg.CookieSameSite)
	require.Equal(t, 10, cfg.JWKCacheMaxSize)
	require.Equal(t, 5*time.Minute, cfg.JWKCacheExpireAfterWrite)
	require.Equal(t, "postgres", cfg.RevocationStore)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("AUTH_SERVER_REMOTE_ADDRESS", "https://auth.example.com")
		t.Setenv("AUTH_SERVER_LOCAL_ADDRESS", "http://dex:5556")
		_, err := config.Load()
		require.Error(t, err)
	})

	t.Run("unknown same site", func(t *testing.T) {
		setRequired(t)
		t.Setenv("COOKIE_SAME_SITE", "sometimes")
		_, err := config.Load()
		require.ErrorContains(t, err, "COOKIE_SAME_SITE")
	})

	t.Run("unknown revocation store", func(t *testing.T) {
		setRequired(t)
		t.Setenv("REVOCATION_STORE", "memcached")
		_, err := config.Load()
		require.ErrorContains(t, err, "REVOCATION_STORE")
	})
}
