// Package config loads run configuration from a TOML file, filling in
// defaults for everything the file leaves out. All knobs here shape
// politeness and confidence; none are required for a run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Matching controls the confidence scoring thresholds.
type Matching struct {
	// Threshold is the 0-100 score at or above which a candidate counts
	// as a match (and a query ladder exits early).
	Threshold int `toml:"threshold"`
}

// Delays controls the politeness pauses between network work. All
// delays are sampled uniformly from [min, max] per occurrence.
type Delays struct {
	SearchMinSeconds float64 `toml:"search_min_seconds"`
	SearchMaxSeconds float64 `toml:"search_max_seconds"`
	BatchMinSeconds  float64 `toml:"batch_min_seconds"`
	BatchMaxSeconds  float64 `toml:"batch_max_seconds"`
	// BatchSize is how many records a worker completes between batch
	// pauses.
	BatchSize int `toml:"batch_size"`
}

// Search controls the fetcher.
type Search struct {
	MaxResultsPerQuery int     `toml:"max_results_per_query"`
	TimeoutSeconds     float64 `toml:"timeout_seconds"`
	CacheTTLHours      int     `toml:"cache_ttl_hours"`
	BrowserCookies     bool    `toml:"browser_cookies"`
}

// Proxies controls the rotating proxy pool.
type Proxies struct {
	// MaxRetries is the consecutive-failure count that permanently
	// disables a proxy for the run.
	MaxRetries int `toml:"max_retries"`
	// AllowDirect lets the run degrade to unproxied requests when every
	// proxy is disabled. When false, exhaustion halts the run; completed
	// records are already persisted either way.
	AllowDirect bool `toml:"allow_direct"`
}

// Config is the full run configuration.
type Config struct {
	Matching Matching `toml:"matching"`
	Delays   Delays   `toml:"delays"`
	Search   Search   `toml:"search"`
	Proxies  Proxies  `toml:"proxies"`
	// Workers is the concurrent worker count, clamped to [1,10].
	Workers int `toml:"workers"`
}

const (
	defaultThreshold        = 50
	defaultSearchMinSeconds = 2
	defaultSearchMaxSeconds = 4
	defaultBatchMinSeconds  = 1
	defaultBatchMaxSeconds  = 3
	defaultBatchSize        = 10
	defaultMaxResults       = 5
	defaultTimeoutSeconds   = 15
	defaultCacheTTLHours    = 24
	defaultProxyMaxRetries  = 3
	defaultWorkers          = 3

	// MaxWorkers bounds concurrency; beyond this the search engine
	// blocks proxies faster than the pool can absorb.
	MaxWorkers = 10
)

// Default returns a Config populated with the stock defaults.
func Default() Config {
	return Config{
		Matching: Matching{Threshold: defaultThreshold},
		Delays: Delays{
			SearchMinSeconds: defaultSearchMinSeconds,
			SearchMaxSeconds: defaultSearchMaxSeconds,
			BatchMinSeconds:  defaultBatchMinSeconds,
			BatchMaxSeconds:  defaultBatchMaxSeconds,
			BatchSize:        defaultBatchSize,
		},
		Search: Search{
			MaxResultsPerQuery: defaultMaxResults,
			TimeoutSeconds:     defaultTimeoutSeconds,
			CacheTTLHours:      defaultCacheTTLHours,
		},
		Proxies: Proxies{MaxRetries: defaultProxyMaxRetries},
		Workers: defaultWorkers,
	}
}

// Load reads the TOML file at path over the defaults. A missing file is
// not an error when path is empty (no --config given); an explicit path
// that does not exist is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only

	if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 100 {
		return errors.New("matching.threshold must be between 0 and 100")
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d", MaxWorkers)
	}
	if c.Delays.SearchMinSeconds < 0 || c.Delays.BatchMinSeconds < 0 {
		return errors.New("delays must not be negative")
	}
	if c.Delays.SearchMaxSeconds < c.Delays.SearchMinSeconds {
		return errors.New("delays.search_max_seconds must be >= search_min_seconds")
	}
	if c.Delays.BatchMaxSeconds < c.Delays.BatchMinSeconds {
		return errors.New("delays.batch_max_seconds must be >= batch_min_seconds")
	}
	if c.Delays.BatchSize < 1 {
		return errors.New("delays.batch_size must be at least 1")
	}
	if c.Search.MaxResultsPerQuery < 1 {
		return errors.New("search.max_results_per_query must be at least 1")
	}
	if c.Search.TimeoutSeconds <= 0 {
		return errors.New("search.timeout_seconds must be positive")
	}
	if c.Proxies.MaxRetries < 1 {
		return errors.New("proxies.max_retries must be at least 1")
	}
	return nil
}

// SearchDelay returns the per-record delay range.
func (c *Config) SearchDelay() (minDelay, maxDelay time.Duration) {
	return seconds(c.Delays.SearchMinSeconds), seconds(c.Delays.SearchMaxSeconds)
}

// BatchDelay returns the per-batch delay range.
func (c *Config) BatchDelay() (minDelay, maxDelay time.Duration) {
	return seconds(c.Delays.BatchMinSeconds), seconds(c.Delays.BatchMaxSeconds)
}

// Timeout returns the hard per-request timeout.
func (c *Config) Timeout() time.Duration {
	return seconds(c.Search.TimeoutSeconds)
}

// CacheTTL returns how long cached responses stay fresh.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Search.CacheTTLHours) * time.Hour
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
