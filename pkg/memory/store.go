// Package memory persists conversation entries across refinement
// requests. Three backends implement the same Store contract: an
// in-process map (memory://), PostgreSQL (postgres://) and Redis
// (redis://), selected by the store_uri scheme.
package memory

import (
	"context"
	"errors"

	"github.com/refinehq/refinery/pkg/models"
)

var (
	// ErrInvalidEntry indicates an entry missing its identity fields.
	ErrInvalidEntry = errors.New("invalid conversation entry")

	// ErrUnsupportedScheme indicates a store URI no backend claims.
	ErrUnsupportedScheme = errors.New("unsupported store scheme")
)

// Store is the conversation memory shared by all backends.
//
// Entries are immutable once appended. Within a thread they are totally
// ordered by timestamp, newest first on reads.
type Store interface {
	// Append commits an entry. Replaying an entry_id already present is
	// a no-op. When the entry's final answer fingerprint matches one of
	// the last duplicate-window entries of its thread, Append sets
	// entry.Duplicate before committing; the entry is stored either way.
	Append(ctx context.Context, entry *models.ConversationEntry) error

	// List returns up to limit entries of a thread, most recent first.
	// limit <= 0 returns all entries.
	List(ctx context.Context, threadID string, limit int) ([]*models.ConversationEntry, error)

	// Search returns entries of a thread whose user_query or
	// final_answer contains the query, case-insensitively. Results are
	// ranked most recent first, ties broken by entry_id. limit <= 0
	// returns all matches.
	Search(ctx context.Context, threadID, query string, limit int) ([]*models.ConversationEntry, error)

	// DeleteThread removes every entry of a thread and reports how many
	// were removed. Unknown threads delete zero entries without error.
	DeleteThread(ctx context.Context, threadID string) (int, error)

	// Stats summarizes the store across all threads.
	Stats(ctx context.Context) (*models.MemoryStats, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// validateEntry rejects entries that lack identity before they reach a
// backend.
func validateEntry(entry *models.ConversationEntry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	if entry.EntryID == "" || entry.ThreadID == "" {
		return ErrInvalidEntry
	}
	return nil
}
