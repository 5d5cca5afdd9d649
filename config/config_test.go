package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.Matching.Threshold != 50 {
		t.Errorf("Threshold = %d, want 50", cfg.Matching.Threshold)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if minD, maxD := cfg.SearchDelay(); minD != 2*time.Second || maxD != 4*time.Second {
		t.Errorf("SearchDelay = %v..%v, want 2s..4s", minD, maxD)
	}
	if minD, maxD := cfg.BatchDelay(); minD != 1*time.Second || maxD != 3*time.Second {
		t.Errorf("BatchDelay = %v..%v, want 1s..3s", minD, maxD)
	}
	if cfg.Timeout() != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Timeout())
	}
	if cfg.Search.MaxResultsPerQuery != 5 {
		t.Errorf("MaxResultsPerQuery = %d, want 5", cfg.Search.MaxResultsPerQuery)
	}
	if cfg.Proxies.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Proxies.MaxRetries)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `workers = 5

[matching]
threshold = 70

[delays]
search_min_seconds = 0.5
search_max_seconds = 1.5

[proxies]
allow_direct = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5", cfg.Workers)
	}
	if cfg.Matching.Threshold != 70 {
		t.Errorf("Threshold = %d, want 70", cfg.Matching.Threshold)
	}
	if minD, maxD := cfg.SearchDelay(); minD != 500*time.Millisecond || maxD != 1500*time.Millisecond {
		t.Errorf("SearchDelay = %v..%v, want 500ms..1.5s", minD, maxD)
	}
	if !cfg.Proxies.AllowDirect {
		t.Error("AllowDirect = false, want true")
	}
	// Unmentioned settings keep their defaults.
	if cfg.Delays.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want default 10", cfg.Delays.BatchSize)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load of missing explicit path succeeded, want error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"workers too high", func(c *Config) { c.Workers = 11 }},
		{"workers too low", func(c *Config) { c.Workers = 0 }},
		{"threshold out of range", func(c *Config) { c.Matching.Threshold = 101 }},
		{"inverted search delay", func(c *Config) { c.Delays.SearchMaxSeconds = 1 }},
		{"inverted batch delay", func(c *Config) { c.Delays.BatchMaxSeconds = 0.5 }},
		{"zero batch size", func(c *Config) { c.Delays.BatchSize = 0 }},
		{"zero max results", func(c *Config) { c.Search.MaxResultsPerQuery = 0 }},
		{"zero timeout", func(c *Config) { c.Search.TimeoutSeconds = 0 }},
		{"zero proxy retries", func(c *Config) { c.Proxies.MaxRetries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}
