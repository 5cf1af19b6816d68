// Package config loads and validates the refinery runtime configuration.
//
// Configuration comes from an optional refinery.yaml in the config
// directory, with {{.VAR}} environment expansion, merged over built-in
// defaults. A small set of REFINERY_* environment variables override
// individual keys so the binary can run without any file at all.
package config

import (
	"strings"
	"time"
)

// Config is the fully resolved runtime configuration returned by
// Initialize() and used throughout the application.
type Config struct {
	configDir string

	// AnalyzerEndpoint is the base URL of the OpenAI-compatible analysis
	// backend. Empty means the client library's default endpoint.
	AnalyzerEndpoint string `yaml:"analyzer_endpoint"`
	// AnalyzerAPIKey authenticates against the analysis backend.
	AnalyzerAPIKey string `yaml:"analyzer_api_key"`
	// AnalyzerModel is the model identifier sent with every analysis call.
	AnalyzerModel string `yaml:"analyzer_model"`

	// StoreURI selects the conversation memory backend by scheme:
	// memory://, postgres://host/db, redis://host:port/0.
	StoreURI string `yaml:"store_uri"`

	// HistoryContextLimit caps how many prior entries are rendered into
	// agent context on follow-up requests.
	HistoryContextLimit int `yaml:"history_context_limit"`
	// DuplicateWindow is how many recent entries per thread are checked
	// when tagging repeated final answers. Zero disables tagging.
	DuplicateWindow int `yaml:"duplicate_window"`

	AnalyzerTimeoutMS int `yaml:"analyzer_timeout_ms"`
	RequestTimeoutMS  int `yaml:"request_timeout_ms"`
	RetryMaxAttempts  int `yaml:"retry_max_attempts"`
	RetryBaseDelayMS  int `yaml:"retry_base_delay_ms"`

	ListenAddress string `yaml:"listen_address"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// AnalyzerTimeout returns the per-call analyzer deadline.
func (c *Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutMS) * time.Millisecond
}

// RequestTimeout returns the whole-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// RetryBaseDelay returns the first retry backoff interval.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// StoreScheme returns the backend scheme of StoreURI ("memory",
// "postgres", "redis", ...), or the raw value when it has no scheme.
func (c *Config) StoreScheme() string {
	if i := strings.Index(c.StoreURI, "://"); i > 0 {
		return c.StoreURI[:i]
	}
	return c.StoreURI
}

// Stats contains statistics about loaded configuration
type Stats struct {
	StoreScheme         string
	HistoryContextLimit int
	DuplicateWindow     int
	RetryMaxAttempts    int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	return Stats{
		StoreScheme:         c.StoreScheme(),
		HistoryContextLimit: c.HistoryContextLimit,
		DuplicateWindow:     c.DuplicateWindow,
		RetryMaxAttempts:    c.RetryMaxAttempts,
	}
}
