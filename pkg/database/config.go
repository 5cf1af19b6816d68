package database

import (
	"net/url"
	"strings"
	"time"
)

// Config holds database connection settings.
type Config struct {
	// URI is a postgres:// connection string, typically the store_uri
	// from application configuration.
	URI string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns connection settings with sensible pool defaults
// for the given connection URI.
func DefaultConfig(uri string) Config {
	return Config{
		URI:             uri,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// DatabaseName extracts the database name from the connection URI.
// golang-migrate wants it as the logical instance name. Falls back to
// "refinery" when the URI has no path component.
func (c Config) DatabaseName() string {
	u, err := url.Parse(c.URI)
	if err != nil {
		return "refinery"
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		return name
	}
	return "refinery"
}
