package crawler

import (
	"fmt"
	"time"
)

// Default configuration values for a crawl run.
const (
	DefaultUserAgent      = "atlasdir-sitecrawler/1.0 (+https://github.com/atlasdir/site-crawler)"
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxRedirects   = 3
	DefaultMaxDepth       = 2
	DefaultConcurrency    = 4
)

// Config captures every knob that influences a crawl run. Values normally
// originate from Viper; the struct is decoupled from it so the engine can
// be configured and tested independently.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxRedirects   int
	RateLimit      int
	RateWindow     time.Duration
	MaxDepth       int
	Concurrency    int
	MaxRuntime     time.Duration
	MaxRetries     int

	RenderEnabled        bool
	RenderTimeout        time.Duration
	RenderMaxConcurrency int

	DetectorMinHTMLBytes int
	DetectorKeywords     []string

	ArchivePrefix string
}

// WithDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.MaxDepth < 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 15 * time.Second
	}
	return c
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("crawler.max_redirects must be >= 0")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("crawler.rate_limit must be > 0")
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("crawler.rate_window must be > 0")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.MaxRuntime < 0 {
		return fmt.Errorf("crawler.max_runtime must be >= 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.RenderEnabled && c.RenderMaxConcurrency <= 0 {
		return fmt.Errorf("render.max_concurrency must be > 0 when rendering is enabled")
	}
	return nil
}
