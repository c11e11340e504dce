package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/retail-console/internal/config"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	require.NoError(t, config.LoadFile(""))
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "http://localhost:8000/api/v1/", c.GetAPIBaseURL())
	require.Equal(t, 15*time.Second, c.GetFetchCacheTTL())
	require.Equal(t, []string{"en", "ru", "uz"}, c.GetLocales())
	require.Equal(t, "en", c.GetDefaultLocale())
	require.False(t, c.GetStrictAccessCheck())
	require.Equal(t, 10*time.Second, c.GetAccessCheckTimeout())
}

func TestEnvOverrides(t *testing.T) {
	require.NoError(t, config.LoadFile(""))
	t.Setenv("PORT", "9090")
	t.Setenv("API_BASE_URL", "https://api.shop.test/v2")
	t.Setenv("FETCH_CACHE_TTL", "30s")
	t.Setenv("STRICT_ACCESS_CHECK", "true")
	t.Setenv("LOCALES", "uz, en")
	t.Setenv("ACCESS_CHECK_TIMEOUT", "2s")

	c := config.New()
	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "https://api.shop.test/v2/", c.GetAPIBaseURL())
	require.Equal(t, 30*time.Second, c.GetFetchCacheTTL())
	require.True(t, c.GetStrictAccessCheck())
	require.Equal(t, []string{"uz", "en"}, c.GetLocales())
	require.Equal(t, "uz", c.GetDefaultLocale())
	require.Equal(t, 2*time.Second, c.GetAccessCheckTimeout())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("API_BASE_URL: https://file.example.com/api/\nFETCH_RETRY_COUNT: \"7\"\n"), 0o600))
	require.NoError(t, config.LoadFile(path))
	t.Cleanup(func() { _ = config.LoadFile("") })

	c := config.New()
	require.Equal(t, "https://file.example.com/api/", c.GetAPIBaseURL())
	require.Equal(t, 7, c.GetRetryCount())

	t.Setenv("API_BASE_URL", "https://env.example.com/")
	require.Equal(t, "https://env.example.com/", c.GetAPIBaseURL())
}

func TestLoadFileErrors(t *testing.T) {
	err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))
	require.Error(t, config.LoadFile(path))
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	origins := config.New().GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://a.example.com"))
	require.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	require.False(t, origins.IsAllowedOrigin("https://c.example.com"))
}
