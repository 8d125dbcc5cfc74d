// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/atlasdir/site-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Detector DetectorConfig `mapstructure:"detector"`
	Render   RenderConfig   `mapstructure:"render"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the fetch pipeline and traversal behavior.
type CrawlerConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_seconds"`
	MaxRedirects      int    `mapstructure:"max_redirects"`
	RateLimit         int    `mapstructure:"rate_limit"`
	RateWindowMs      int    `mapstructure:"rate_window_ms"`
	MaxDepth          int    `mapstructure:"max_depth"`
	Concurrency       int    `mapstructure:"concurrency"`
	MaxRuntimeSec     int    `mapstructure:"max_runtime_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
}

// DetectorConfig tunes the JS-application heuristic.
type DetectorConfig struct {
	MinHTMLBytes int      `mapstructure:"min_html_bytes"`
	Keywords     []string `mapstructure:"keywords"`
}

// RenderConfig configures the headless rendering subsystem.
type RenderConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	MaxConcurrency int  `mapstructure:"max_concurrency"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for crawl event notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig sets where page snapshots are stored. Backend is one of
// "none", "memory", "local", or "gcs".
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITECRAWLER")
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
	v.SetDefault("crawler.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("crawler.request_timeout_seconds", 10)
	v.SetDefault("crawler.max_redirects", 3)
	v.SetDefault("crawler.rate_limit", crawler.DefaultRateLimit)
	v.SetDefault("crawler.rate_window_ms", 1000)
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.max_runtime_seconds", 0)
	v.SetDefault("crawler.max_retries", 0)
	v.SetDefault("detector.min_html_bytes", 2048)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.timeout_seconds", 15)
	v.SetDefault("render.max_concurrency", 1)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.topic_name", "crawl-events")
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.RequestTimeoutSec <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.RateLimit <= 0 {
		return fmt.Errorf("crawler.rate_limit must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxConcurrency <= 0 {
		return fmt.Errorf("render.max_concurrency must be > 0 when rendering is enabled")
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, memory, local, gcs")
	}
	return nil
}

// CrawlerConfig converts the loaded values into the engine's Config.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		UserAgent:            c.Crawler.UserAgent,
		RequestTimeout:       time.Duration(c.Crawler.RequestTimeoutSec) * time.Second,
		MaxRedirects:         c.Crawler.MaxRedirects,
		RateLimit:            c.Crawler.RateLimit,
		RateWindow:           time.Duration(c.Crawler.RateWindowMs) * time.Millisecond,
		MaxDepth:             c.Crawler.MaxDepth,
		Concurrency:          c.Crawler.Concurrency,
		MaxRuntime:           time.Duration(c.Crawler.MaxRuntimeSec) * time.Second,
		MaxRetries:           c.Crawler.MaxRetries,
		RenderEnabled:        c.Render.Enabled,
		RenderTimeout:        time.Duration(c.Render.TimeoutSeconds) * time.Second,
		RenderMaxConcurrency: c.Render.MaxConcurrency,
		DetectorMinHTMLBytes: c.Detector.MinHTMLBytes,
		DetectorKeywords:     c.Detector.Keywords,
		ArchivePrefix:        c.Archive.Prefix,
	}.WithDefaults()
}
