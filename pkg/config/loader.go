package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the YAML file Initialize looks for inside the
// config directory.
const ConfigFileName = "refinery.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load refinery.yaml from configDir (the file is optional)
//  2. Expand environment variables
//  3. Merge file values over built-in defaults
//  4. Apply REFINERY_* environment overrides
//  5. Validate the resolved configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"store", stats.StoreScheme,
		"history_context_limit", stats.HistoryContextLimit,
		"duplicate_window", stats.DuplicateWindow,
		"retry_max_attempts", stats.RetryMaxAttempts)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.configDir = configDir

	fileCfg, err := loadConfigYAML(configDir)
	if err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}

	if fileCfg == nil {
		slog.Info("No configuration file found, using defaults",
			"path", filepath.Join(configDir, ConfigFileName))
	} else {
		// Merge file values into defaults (non-zero values override).
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, NewLoadError(ConfigFileName, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadConfigYAML parses refinery.yaml. A missing file is not an error:
// the caller sticks with built-in defaults and environment overrides.
func loadConfigYAML(configDir string) (*Config, error) {
	path := filepath.Join(configDir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing the YAML parser to handle the content (or fail with a clearer
	// error message).
	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies REFINERY_* environment variables on top of
// the merged configuration, so the binary can run without any file.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("Ignoring non-integer environment override", "key", key, "value", v)
			return
		}
		*dst = n
	}

	setString("REFINERY_ANALYZER_ENDPOINT", &cfg.AnalyzerEndpoint)
	setString("REFINERY_ANALYZER_API_KEY", &cfg.AnalyzerAPIKey)
	setString("REFINERY_ANALYZER_MODEL", &cfg.AnalyzerModel)
	setString("REFINERY_STORE_URI", &cfg.StoreURI)
	setString("REFINERY_LISTEN_ADDRESS", &cfg.ListenAddress)
	setInt("REFINERY_HISTORY_CONTEXT_LIMIT", &cfg.HistoryContextLimit)
	setInt("REFINERY_DUPLICATE_WINDOW", &cfg.DuplicateWindow)
	setInt("REFINERY_ANALYZER_TIMEOUT_MS", &cfg.AnalyzerTimeoutMS)
	setInt("REFINERY_REQUEST_TIMEOUT_MS", &cfg.RequestTimeoutMS)
	setInt("REFINERY_RETRY_MAX_ATTEMPTS", &cfg.RetryMaxAttempts)
	setInt("REFINERY_RETRY_BASE_DELAY_MS", &cfg.RetryBaseDelayMS)
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}
