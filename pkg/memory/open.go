package memory

import (
	"context"
	"fmt"
	"net/url"

	"github.com/refinehq/refinery/pkg/database"
)

// Options tunes store behavior shared by all backends.
type Options struct {
	// DuplicateWindow is how many recent entries per thread are compared
	// when tagging repeated final answers. Zero disables tagging.
	DuplicateWindow int
}

// Open selects and connects a store backend by URI scheme:
//
//	memory://                        in-process map
//	postgres://user:pw@host/db      PostgreSQL (runs migrations)
//	redis://host:port/0             Redis
func Open(ctx context.Context, uri string, opts Options) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store uri: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewInMemoryStore(opts), nil

	case "postgres", "postgresql":
		client, err := database.NewClient(ctx, database.DefaultConfig(uri))
		if err != nil {
			return nil, fmt.Errorf("failed to connect postgres store: %w", err)
		}
		return NewPostgresStore(client, opts), nil

	case "redis", "rediss":
		return OpenRedis(ctx, uri, opts)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
