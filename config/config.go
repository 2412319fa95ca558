// Package config manages application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Precedence is command-line
// flags, then environment variables, then the config file, then
// defaults.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" env:"PODTUBE_PORT"`
	// Host is the HTTP listen address. Empty binds all interfaces.
	Host string `yaml:"host" env:"PODTUBE_HOST"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"PODTUBE_LOG_LEVEL"`
	// DataDir is the root directory for converted media.
	DataDir string `yaml:"data_dir" env:"PODTUBE_DATA_DIR"`

	// YouTubeAPIKey authenticates Data API requests.
	YouTubeAPIKey string `yaml:"youtube_api_key" env:"PODTUBE_YOUTUBE_API_KEY"`

	// CleanupInterval is how often expired cache entries and media
	// files are swept.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"PODTUBE_CLEANUP_INTERVAL"`
	// ConvertInterval is how often the conversion queue is polled.
	ConvertInterval time.Duration `yaml:"convert_interval" env:"PODTUBE_CONVERT_INTERVAL"`
	// AudioTTL is how long converted audio is kept on disk.
	AudioTTL time.Duration `yaml:"audio_ttl" env:"PODTUBE_AUDIO_TTL"`
	// MaxConversions bounds simultaneous audio conversions.
	MaxConversions int `yaml:"max_conversions" env:"PODTUBE_MAX_CONVERSIONS"`
	// AutoloadNewest pre-converts the newest item of every feed fetch.
	AutoloadNewest bool `yaml:"autoload_newest" env:"PODTUBE_AUTOLOAD_NEWEST"`

	// FFmpegPath locates the ffmpeg binary. Empty uses PATH.
	FFmpegPath string `yaml:"ffmpeg_path" env:"PODTUBE_FFMPEG_PATH"`
	// ProxyURL routes upstream requests through an HTTP proxy.
	ProxyURL string `yaml:"proxy_url" env:"PODTUBE_PROXY_URL"`
	// HTTPTimeout is the per-request timeout for upstream fetches.
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"PODTUBE_HTTP_TIMEOUT"`

	// MaxRetries bounds retry attempts per upstream request.
	MaxRetries int `yaml:"max_retries" env:"PODTUBE_MAX_RETRIES"`
	// RetryBackoff is the initial delay between retries; it grows
	// exponentially up to the client's cap.
	RetryBackoff time.Duration `yaml:"retry_backoff" env:"PODTUBE_RETRY_BACKOFF"`
	// RateLimit is the default requests-per-second ceiling for hosts
	// without an explicit entry. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"PODTUBE_RATE_LIMIT"`
	// RateLimitPerHost overrides RateLimit per upstream host.
	RateLimitPerHost map[string]float64 `yaml:"rate_limit_per_host" env:"PODTUBE_RATE_LIMIT_PER_HOST"`
}

// Default returns configuration with safe defaults.
func Default() *Config {
	return &Config{
		Port:            15000,
		LogLevel:        "info",
		DataDir:         "data",
		CleanupInterval: 10 * time.Minute,
		ConvertInterval: time.Second,
		AudioTTL:        72 * time.Hour,
		MaxConversions:  2,
		AutoloadNewest:  true,
		HTTPTimeout:     30 * time.Second,
		MaxRetries:      5,
		RetryBackoff:    time.Second,
		RateLimit:       2.0,
	}
}

// Load builds the configuration from an optional YAML file and the
// environment. Priority: env vars > config file > defaults. Flag
// overrides are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive")
	}
	if c.ConvertInterval <= 0 {
		return fmt.Errorf("convert_interval must be positive")
	}
	if c.AudioTTL <= 0 {
		return fmt.Errorf("audio_ttl must be positive")
	}
	if c.MaxConversions < 1 {
		return fmt.Errorf("max_conversions must be at least 1")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry_backoff must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	for host, rps := range c.RateLimitPerHost {
		if rps < 0 {
			return fmt.Errorf("rate_limit_per_host[%s] must not be negative", host)
		}
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
