package config

import (
	"fmt"
	"net"
	"net/url"
)

// storeSchemes are the memory backends selectable through store_uri.
var storeSchemes = map[string]bool{
	"memory":     true,
	"postgres":   true,
	"postgresql": true,
	"redis":      true,
	"rediss":     true,
}

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateAnalyzer(); err != nil {
		return fmt.Errorf("analyzer validation failed: %w", err)
	}

	if err := v.validateStore(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if err := v.validateLimits(); err != nil {
		return fmt.Errorf("limits validation failed: %w", err)
	}

	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateAnalyzer() error {
	if v.cfg.AnalyzerAPIKey == "" {
		return NewValidationError("analyzer", "analyzer_api_key", ErrMissingRequiredField)
	}

	if v.cfg.AnalyzerModel == "" {
		return NewValidationError("analyzer", "analyzer_model", ErrMissingRequiredField)
	}

	// Endpoint is optional; when set it must be an absolute http(s) URL.
	if v.cfg.AnalyzerEndpoint != "" {
		u, err := url.Parse(v.cfg.AnalyzerEndpoint)
		if err != nil {
			return NewValidationError("analyzer", "analyzer_endpoint", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return NewValidationError("analyzer", "analyzer_endpoint",
				fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidValue, u.Scheme))
		}
		if u.Host == "" {
			return NewValidationError("analyzer", "analyzer_endpoint",
				fmt.Errorf("%w: missing host", ErrInvalidValue))
		}
	}

	return nil
}

func (v *ConfigValidator) validateStore() error {
	if v.cfg.StoreURI == "" {
		return NewValidationError("store", "store_uri", ErrMissingRequiredField)
	}

	u, err := url.Parse(v.cfg.StoreURI)
	if err != nil {
		return NewValidationError("store", "store_uri", fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}
	if !storeSchemes[u.Scheme] {
		return NewValidationError("store", "store_uri",
			fmt.Errorf("%w: unsupported scheme %q (want memory, postgres, or redis)", ErrInvalidValue, u.Scheme))
	}

	return nil
}

func (v *ConfigValidator) validateLimits() error {
	if v.cfg.HistoryContextLimit < 1 {
		return NewValidationError("limits", "history_context_limit",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if v.cfg.DuplicateWindow < 0 {
		return NewValidationError("limits", "duplicate_window",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}

	if v.cfg.AnalyzerTimeoutMS < 1 {
		return NewValidationError("limits", "analyzer_timeout_ms",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if v.cfg.RequestTimeoutMS < 1 {
		return NewValidationError("limits", "request_timeout_ms",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if v.cfg.RetryMaxAttempts < 1 {
		return NewValidationError("limits", "retry_max_attempts",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if v.cfg.RetryBaseDelayMS < 1 {
		return NewValidationError("limits", "retry_base_delay_ms",
			fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	return nil
}

func (v *ConfigValidator) validateServer() error {
	_, port, err := net.SplitHostPort(v.cfg.ListenAddress)
	if err != nil {
		return NewValidationError("server", "listen_address",
			fmt.Errorf("%w: %v", ErrInvalidValue, err))
	}
	if port == "" {
		return NewValidationError("server", "listen_address",
			fmt.Errorf("%w: want host:port, got %q", ErrInvalidValue, v.cfg.ListenAddress))
	}

	return nil
}
