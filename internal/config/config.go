// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CheckpointConfig locates the durable ledger files.
type CheckpointConfig struct {
	Root string `mapstructure:"root"`
}

// CrawlerConfig governs the trending crawl loop.
type CrawlerConfig struct {
	// Pages is the fixed page range walked per category (1..Pages).
	Pages int `mapstructure:"pages"`
	// TotalEstimate seeds the progress denominator; it is a rough
	// constant, not a precise bound.
	TotalEstimate int `mapstructure:"total_estimate"`
	// SkipIncrement advances done when a category artifact already
	// exists and the whole category is skipped.
	SkipIncrement int `mapstructure:"skip_increment"`
}

// FetcherConfig controls detail-fetch retry waits and request pacing.
type FetcherConfig struct {
	RateLimitWaitSeconds int     `mapstructure:"rate_limit_wait_seconds"`
	BlockedWaitSeconds   int     `mapstructure:"blocked_wait_seconds"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
	RequestBurst         int     `mapstructure:"request_burst"`
}

// CatalogConfig bounds the catalog-sync crawl.
type CatalogConfig struct {
	MaxNewPerRun int `mapstructure:"max_new_per_run"`
}

// StoreConfig points at the remote storefront API.
type StoreConfig struct {
	SearchURL      string `mapstructure:"search_url"`
	DetailsURL     string `mapstructure:"details_url"`
	AppListURL     string `mapstructure:"app_list_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	CountryCode    string `mapstructure:"country_code"`
	Language       string `mapstructure:"language"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("checkpoint.root", "checkpoints")
	v.SetDefault("crawler.pages", 4)
	v.SetDefault("crawler.total_estimate", 500)
	v.SetDefault("crawler.skip_increment", 100)
	v.SetDefault("fetcher.rate_limit_wait_seconds", 10)
	v.SetDefault("fetcher.blocked_wait_seconds", 300)
	v.SetDefault("fetcher.requests_per_second", 4)
	v.SetDefault("fetcher.request_burst", 1)
	v.SetDefault("catalog.max_new_per_run", 200)
	v.SetDefault("store.search_url", "https://store.steampowered.com/search/results/")
	v.SetDefault("store.details_url", "https://store.steampowered.com/api/appdetails/")
	v.SetDefault("store.app_list_url", "https://api.steampowered.com/ISteamApps/GetAppList/v2/")
	v.SetDefault("store.user_agent", "catalog-crawler/0.1")
	v.SetDefault("store.timeout_seconds", 30)
	v.SetDefault("store.country_code", "US")
	v.SetDefault("store.language", "english")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Checkpoint.Root == "" {
		return fmt.Errorf("checkpoint.root must be set")
	}
	if c.Crawler.Pages <= 0 {
		return fmt.Errorf("crawler.pages must be > 0")
	}
	if c.Fetcher.RateLimitWaitSeconds <= 0 || c.Fetcher.BlockedWaitSeconds <= 0 {
		return fmt.Errorf("fetcher wait intervals must be > 0")
	}
	if c.Fetcher.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetcher.requests_per_second must be > 0")
	}
	if c.Catalog.MaxNewPerRun <= 0 {
		return fmt.Errorf("catalog.max_new_per_run must be > 0")
	}
	if c.Store.TimeoutSeconds <= 0 {
		return fmt.Errorf("store.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RateLimitWait converts the 429 backoff knob into a duration.
func (c FetcherConfig) RateLimitWait() time.Duration {
	return time.Duration(c.RateLimitWaitSeconds) * time.Second
}

// BlockedWait converts the 403 backoff knob into a duration.
func (c FetcherConfig) BlockedWait() time.Duration {
	return time.Duration(c.BlockedWaitSeconds) * time.Second
}

// Timeout converts the HTTP client timeout knob into a duration.
func (c StoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
