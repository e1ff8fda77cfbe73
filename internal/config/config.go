// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/karstyne/leadscout/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Network    NetworkConfig    `mapstructure:"network" yaml:"network"`
	Shaper     ShaperConfig     `mapstructure:"shaper" yaml:"shaper"`
	Sources    SourcesConfig    `mapstructure:"sources" yaml:"sources"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`

	// Scrape gets its marching orders from CLI flags, not the config file.
	Scrape schemas.ScrapingConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the persistence boundary connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NetworkConfig tunes the content fetcher.
type NetworkConfig struct {
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	MaxRedirects    int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// ShaperConfig tunes the anti-detection request shaper.
type ShaperConfig struct {
	RequestsPerMinute int      `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Proxies           []string `mapstructure:"proxies" yaml:"proxies"`
	// SessionMaxRequests and SessionMaxAge bound a browsing session before a
	// fresh one is created for the domain.
	SessionMaxRequests int           `mapstructure:"session_max_requests" yaml:"session_max_requests"`
	SessionMaxAge      time.Duration `mapstructure:"session_max_age" yaml:"session_max_age"`
	// InteractionChance is the probability (0-1) of simulating a short
	// scroll/read pause on a session request.
	InteractionChance float64 `mapstructure:"interaction_chance" yaml:"interaction_chance"`
}

// SourceConfig configures a single search provider.
type SourceConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey   string `mapstructure:"api_key" yaml:"-"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// FeedURLs is only meaningful for the RSS source.
	FeedURLs []string `mapstructure:"feed_urls" yaml:"feed_urls"`
}

// SourcesConfig holds per-provider settings keyed by source ID.
type SourcesConfig struct {
	NewsAPI   SourceConfig `mapstructure:"newsapi" yaml:"newsapi"`
	WebSearch SourceConfig `mapstructure:"websearch" yaml:"websearch"`
	RSS       SourceConfig `mapstructure:"rss" yaml:"rss"`
}

// AIConfig tunes the optional text-completion extraction path. Its timeout is
// independent of, and shorter than, the fetch timeout.
type AIConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"`
	Model      string        `mapstructure:"model" yaml:"model"`
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxChars   int           `mapstructure:"max_chars" yaml:"max_chars"`
}

// ExtractionConfig holds extraction engine settings.
type ExtractionConfig struct {
	AI AIConfig `mapstructure:"ai" yaml:"ai"`
	// DefaultRegion biases phone number parsing when no country code is
	// present in the text.
	DefaultRegion string `mapstructure:"default_region" yaml:"default_region"`
}

// PipelineConfig bounds the orchestrator's concurrency.
type PipelineConfig struct {
	FetchConcurrency  int           `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
	SourceConcurrency int           `mapstructure:"source_concurrency" yaml:"source_concurrency"`
	RunTimeout        time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "leadscout")
	v.SetDefault("logger.log_file", "leadscout.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Network --
	v.SetDefault("network.fetch_timeout", "10s")
	v.SetDefault("network.max_redirects", 5)
	v.SetDefault("network.max_retries", 2)
	v.SetDefault("network.max_body_bytes", 5<<20)
	v.SetDefault("network.ignore_tls_errors", false)

	// -- Shaper --
	v.SetDefault("shaper.requests_per_minute", 30)
	v.SetDefault("shaper.session_max_requests", 10)
	v.SetDefault("shaper.session_max_age", "30m")
	v.SetDefault("shaper.interaction_chance", 0.3)

	// -- Sources --
	v.SetDefault("sources.newsapi.enabled", true)
	v.SetDefault("sources.newsapi.endpoint", "https://newsapi.org/v2/everything")
	v.SetDefault("sources.websearch.enabled", true)
	v.SetDefault("sources.websearch.endpoint", "https://api.search.brave.com/res/v1/web/search")
	v.SetDefault("sources.rss.enabled", false)

	// -- Extraction --
	v.SetDefault("extraction.default_region", "US")
	v.SetDefault("extraction.ai.provider", "gemini")
	v.SetDefault("extraction.ai.model", "gemini-2.5-flash")
	v.SetDefault("extraction.ai.api_timeout", "8s")
	v.SetDefault("extraction.ai.max_chars", 4000)

	// -- Pipeline --
	v.SetDefault("pipeline.fetch_concurrency", 5)
	v.SetDefault("pipeline.source_concurrency", 6)
	v.SetDefault("pipeline.run_timeout", "15m")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("sources.newsapi.api_key", "LEADSCOUT_NEWSAPI_KEY")
	v.BindEnv("sources.websearch.api_key", "LEADSCOUT_WEBSEARCH_KEY")
	v.BindEnv("extraction.ai.api_key", "LEADSCOUT_AI_KEY")
	v.BindEnv("database.url", "LEADSCOUT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Shaper.RequestsPerMinute <= 0 {
		return fmt.Errorf("shaper.requests_per_minute must be a positive integer")
	}
	if c.Shaper.InteractionChance < 0 || c.Shaper.InteractionChance > 1 {
		return fmt.Errorf("shaper.interaction_chance must be between 0.0 and 1.0")
	}
	if c.Pipeline.FetchConcurrency <= 0 {
		return fmt.Errorf("pipeline.fetch_concurrency must be a positive integer")
	}
	if c.Network.FetchTimeout <= 0 {
		return fmt.Errorf("network.fetch_timeout must be a positive duration")
	}
	if c.Network.MaxRedirects < 0 {
		return fmt.Errorf("network.max_redirects must not be negative")
	}
	if c.Extraction.AI.APITimeout >= c.Network.FetchTimeout {
		return fmt.Errorf("extraction.ai.api_timeout must be shorter than network.fetch_timeout")
	}
	return nil
}
