package memory

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/refinehq/refinery/pkg/database"
	"github.com/refinehq/refinery/pkg/models"
)

// PostgresStore persists conversation entries in PostgreSQL via the
// shared database client. Schema is managed by the client's embedded
// migrations.
type PostgresStore struct {
	client *database.Client
	window int
}

// NewPostgresStore wraps an existing database client.
func NewPostgresStore(client *database.Client, opts Options) *PostgresStore {
	return &PostgresStore{
		client: client,
		window: opts.DuplicateWindow,
	}
}

const entryColumns = `entry_id, thread_id, ts, user_query, query_kind, is_followup,
	specialist_outputs, moderator_output, final_answer, route_decision,
	processing_time_ms, duplicate`

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, entry *models.ConversationEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Replay of a committed entry is a no-op; skip it before the
	// duplicate check so the replayed entry does not match itself.
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversation_entries WHERE entry_id = $1)`,
		entry.EntryID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check entry existence: %w", err)
	}
	if exists {
		return tx.Commit()
	}

	fp := Fingerprint(entry.FinalAnswer)
	if s.window > 0 {
		var dup bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM (
					SELECT fingerprint FROM conversation_entries
					WHERE thread_id = $1
					ORDER BY ts DESC, entry_id DESC
					LIMIT $2
				) recent WHERE recent.fingerprint = $3
			)`,
			entry.ThreadID, s.window, fp).Scan(&dup)
		if err != nil {
			return fmt.Errorf("failed to check duplicate window: %w", err)
		}
		if dup {
			entry.Duplicate = true
		}
	}

	outputs, err := json.Marshal(entry.SpecialistOutputs)
	if err != nil {
		return fmt.Errorf("failed to encode specialist outputs: %w", err)
	}

	moderator := stdsql.NullString{String: entry.ModeratorOutput, Valid: entry.ModeratorOutput != ""}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_entries (`+entryColumns+`, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (entry_id) DO NOTHING`,
		entry.EntryID, entry.ThreadID, entry.Timestamp, entry.UserQuery,
		entry.QueryKind, entry.IsFollowup, outputs, moderator,
		entry.FinalAnswer, entry.RouteDecision, entry.ProcessingTimeMS,
		entry.Duplicate, fp)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, threadID string, limit int) ([]*models.ConversationEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM conversation_entries
		WHERE thread_id = $1
		ORDER BY ts DESC, entry_id DESC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Search implements Store.
func (s *PostgresStore) Search(ctx context.Context, threadID, query string, limit int) ([]*models.ConversationEntry, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	stmt := `SELECT ` + entryColumns + `
		FROM conversation_entries
		WHERE thread_id = $1
		  AND (LOWER(user_query) LIKE $2 ESCAPE '\' OR LOWER(final_answer) LIKE $2 ESCAPE '\')
		ORDER BY ts DESC, entry_id ASC`
	args := []any{threadID, pattern}
	if limit > 0 {
		stmt += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.client.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteThread implements Store.
func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) (int, error) {
	res, err := s.client.DB().ExecContext(ctx,
		`DELETE FROM conversation_entries WHERE thread_id = $1`, threadID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete thread: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted entries: %w", err)
	}
	return int(count), nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (*models.MemoryStats, error) {
	var (
		stats models.MemoryStats
		last  stdsql.NullTime
	)
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT thread_id), MAX(ts)
		FROM conversation_entries`).
		Scan(&stats.TotalEntries, &stats.ThreadCount, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	if last.Valid {
		stats.LastUpdated = last.Time
	}
	return &stats, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.client.DB().PingContext(ctx)
}

// Health reports connection pool statistics alongside reachability. The
// health endpoint surfaces these when the store is postgres-backed.
func (s *PostgresStore) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.client.Health(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.client.Close()
}

func scanEntries(rows *stdsql.Rows) ([]*models.ConversationEntry, error) {
	var entries []*models.ConversationEntry
	for rows.Next() {
		var (
			e         models.ConversationEntry
			outputs   []byte
			moderator stdsql.NullString
		)
		err := rows.Scan(&e.EntryID, &e.ThreadID, &e.Timestamp, &e.UserQuery,
			&e.QueryKind, &e.IsFollowup, &outputs, &moderator,
			&e.FinalAnswer, &e.RouteDecision, &e.ProcessingTimeMS, &e.Duplicate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if len(outputs) > 0 {
			if err := json.Unmarshal(outputs, &e.SpecialistOutputs); err != nil {
				return nil, fmt.Errorf("failed to decode specialist outputs: %w", err)
			}
		}
		if moderator.Valid {
			e.ModeratorOutput = moderator.String
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// escapeLike escapes LIKE metacharacters in a search needle.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
