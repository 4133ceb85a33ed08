package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	// MaxConcurrency is the upper bound on parallel scrapes.
	MaxConcurrency = 10
	// DefaultInitialDelay is the base backoff used when the initial delay is enabled.
	DefaultInitialDelay = 2 * time.Second
)

// Config holds scraper configuration.
type Config struct {
	APIKey          string
	Endpoint        string
	Country         string
	PremiumProxies  bool
	Concurrency     int
	UseInitialDelay bool
	MaxRetries      int
	JitterMax       time.Duration
	Timeout         time.Duration
	TaskTimeout     time.Duration
	DispatchPause   time.Duration
	CachePath       string
	CacheTTL        time.Duration
	CacheMemorySize int
	OutputFile      string
	OutputFormat    string // csv, json, xlsx, dual, or all
	UserAgent       string
	MetricsAddr     string
	Verbose         bool
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:        "https://api.scrapeowl.com/v1/scrape",
		Country:         "gb",
		PremiumProxies:  true,
		Concurrency:     1,
		UseInitialDelay: true,
		MaxRetries:      5,
		JitterMax:       time.Second,
		Timeout:         60 * time.Second,
		TaskTimeout:     60 * time.Second,
		DispatchPause:   time.Second,
		CachePath:       "cache.db",
		CacheTTL:        24 * time.Hour,
		CacheMemorySize: 1024,
		OutputFile:      "output/scraped_data.csv",
		OutputFormat:    "csv",
		UserAgent:       "go-scrape-products/1.0",
	}
}

// InitialDelay returns the retry base delay implied by UseInitialDelay.
func (c *Config) InitialDelay() time.Duration {
	if c.UseInitialDelay {
		return DefaultInitialDelay
	}
	return 0
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	parsedURL, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("endpoint must include a scheme and host")
	}

	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d", MaxConcurrency)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.JitterMax < 0 {
		return fmt.Errorf("jitter max cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("task timeout must be positive")
	}
	if c.DispatchPause < 0 {
		return fmt.Errorf("dispatch pause cannot be negative")
	}
	if c.CachePath == "" {
		return fmt.Errorf("cache path cannot be empty")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.CacheMemorySize < 0 {
		return fmt.Errorf("cache memory size cannot be negative")
	}
	switch c.OutputFormat {
	case "csv", "json", "xlsx", "dual", "all":
	default:
		return fmt.Errorf("output format must be csv, json, xlsx, dual, or all")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
