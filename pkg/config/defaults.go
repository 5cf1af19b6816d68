package config

// Built-in configuration values used when refinery.yaml does not
// override them. Timeouts and retry knobs are expressed in
// milliseconds to match the YAML keys.
const (
	DefaultAnalyzerModel       = "gpt-4o-mini"
	DefaultStoreURI            = "memory://"
	DefaultHistoryContextLimit = 10
	DefaultDuplicateWindow     = 5
	DefaultAnalyzerTimeoutMS   = 45000
	DefaultRequestTimeoutMS    = 180000
	DefaultRetryMaxAttempts    = 3
	DefaultRetryBaseDelayMS    = 250
	DefaultListenAddress       = "0.0.0.0:2024"
)

// DefaultConfig returns the built-in configuration. User YAML and
// environment overrides are merged on top of it.
func DefaultConfig() *Config {
	return &Config{
		AnalyzerModel:       DefaultAnalyzerModel,
		StoreURI:            DefaultStoreURI,
		HistoryContextLimit: DefaultHistoryContextLimit,
		DuplicateWindow:     DefaultDuplicateWindow,
		AnalyzerTimeoutMS:   DefaultAnalyzerTimeoutMS,
		RequestTimeoutMS:    DefaultRequestTimeoutMS,
		RetryMaxAttempts:    DefaultRetryMaxAttempts,
		RetryBaseDelayMS:    DefaultRetryBaseDelayMS,
		ListenAddress:       DefaultListenAddress,
	}
}
