package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoadDefaults verifies a config with no file carries the full
// default surface.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "checkpoints", cfg.Checkpoint.Root)
	require.Equal(t, 4, cfg.Crawler.Pages)
	require.Equal(t, 500, cfg.Crawler.TotalEstimate)
	require.Equal(t, 100, cfg.Crawler.SkipIncrement)
	require.Equal(t, 10*time.Second, cfg.Fetcher.RateLimitWait())
	require.Equal(t, 5*time.Minute, cfg.Fetcher.BlockedWait())
	require.Equal(t, 200, cfg.Catalog.MaxNewPerRun)
	require.Equal(t, 30*time.Second, cfg.Store.Timeout())
	require.NotEmpty(t, cfg.Store.SearchURL)
	require.False(t, cfg.Auth.Enabled)
}

// TestLoadFromFile verifies file values override defaults.
func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
crawler:
  pages: 2
fetcher:
  rate_limit_wait_seconds: 1
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 2, cfg.Crawler.Pages)
	require.Equal(t, time.Second, cfg.Fetcher.RateLimitWait())
	// Unset keys keep their defaults.
	require.Equal(t, 100, cfg.Crawler.SkipIncrement)
}

// TestLoadMissingFile verifies an explicit but absent path fails.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// TestLoadEnvOverride verifies the environment prefix wins over
// defaults.
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CATALOG_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}

// TestValidateRejectsBadValues covers the validation rules.
func TestValidateRejectsBadValues(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty checkpoint root", func(c *Config) { c.Checkpoint.Root = "" }},
		{"zero pages", func(c *Config) { c.Crawler.Pages = 0 }},
		{"zero rate limit wait", func(c *Config) { c.Fetcher.RateLimitWaitSeconds = 0 }},
		{"zero blocked wait", func(c *Config) { c.Fetcher.BlockedWaitSeconds = 0 }},
		{"zero rps", func(c *Config) { c.Fetcher.RequestsPerSecond = 0 }},
		{"zero catalog cap", func(c *Config) { c.Catalog.MaxNewPerRun = 0 }},
		{"zero store timeout", func(c *Config) { c.Store.TimeoutSeconds = 0 }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true; c.Auth.APIKey = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
