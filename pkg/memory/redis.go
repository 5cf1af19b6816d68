package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/refinehq/refinery/pkg/models"
)

// RedisStore persists conversation entries in Redis. Each thread is a
// list of entry JSON with the newest at the head, plus a set of entry
// IDs for idempotent appends; a global set tracks known threads.
type RedisStore struct {
	rdb    *redis.Client
	window int
}

const (
	redisThreadsKey  = "refinery:threads"
	redisThreadKey   = "refinery:thread:"
	redisIDSetSuffix = ":ids"
)

func threadKey(threadID string) string { return redisThreadKey + threadID }
func threadIDs(threadID string) string { return redisThreadKey + threadID + redisIDSetSuffix }

// redisEntry is the stored wire shape: the entry plus its precomputed
// fingerprint for window checks.
type redisEntry struct {
	models.ConversationEntry
	Fingerprint string `json:"fingerprint"`
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{rdb: rdb, window: opts.DuplicateWindow}
}

// OpenRedis connects to the Redis at uri (redis:// or rediss://) and
// verifies the connection.
func OpenRedis(ctx context.Context, uri string, opts Options) (*RedisStore, error) {
	ropts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStore(rdb, opts), nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, entry *models.ConversationEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	exists, err := s.rdb.SIsMember(ctx, threadIDs(entry.ThreadID), entry.EntryID).Result()
	if err != nil {
		return fmt.Errorf("failed to check entry existence: %w", err)
	}
	if exists {
		return nil
	}

	fp := Fingerprint(entry.FinalAnswer)
	if s.window > 0 {
		recent, err := s.recentEntries(ctx, entry.ThreadID, s.window)
		if err != nil {
			return err
		}
		for _, r := range recent {
			if r.Fingerprint == fp {
				entry.Duplicate = true
				break
			}
		}
	}

	// Clamp the timestamp past the newest entry so per-thread ordering
	// stays strict.
	if newest, err := s.newestTimestamp(ctx, entry.ThreadID); err != nil {
		return err
	} else if !newest.IsZero() && !entry.Timestamp.After(newest) {
		entry.Timestamp = newest.Add(time.Nanosecond)
	}

	data, err := json.Marshal(redisEntry{ConversationEntry: *entry, Fingerprint: fp})
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, threadKey(entry.ThreadID), data)
	pipe.SAdd(ctx, threadIDs(entry.ThreadID), entry.EntryID)
	pipe.SAdd(ctx, redisThreadsKey, entry.ThreadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, threadID string, limit int) ([]*models.ConversationEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	raw, err := s.rdb.LRange(ctx, threadKey(threadID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	entries := make([]*models.ConversationEntry, 0, len(raw))
	for _, item := range raw {
		var re redisEntry
		if err := json.Unmarshal([]byte(item), &re); err != nil {
			return nil, fmt.Errorf("failed to decode entry: %w", err)
		}
		e := re.ConversationEntry
		entries = append(entries, &e)
	}
	return entries, nil
}

// Search implements Store.
func (s *RedisStore) Search(ctx context.Context, threadID, query string, limit int) ([]*models.ConversationEntry, error) {
	all, err := s.List(ctx, threadID, 0)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var matches []*models.ConversationEntry
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.UserQuery), needle) ||
			strings.Contains(strings.ToLower(e.FinalAnswer), needle) {
			matches = append(matches, e)
		}
	}

	sortSearchResults(matches)

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteThread implements Store.
func (s *RedisStore) DeleteThread(ctx context.Context, threadID string) (int, error) {
	count, err := s.rdb.LLen(ctx, threadKey(threadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count thread entries: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, threadKey(threadID), threadIDs(threadID))
	pipe.SRem(ctx, redisThreadsKey, threadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete thread: %w", err)
	}
	return int(count), nil
}

// Stats implements Store.
func (s *RedisStore) Stats(ctx context.Context) (*models.MemoryStats, error) {
	threads, err := s.rdb.SMembers(ctx, redisThreadsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	stats := &models.MemoryStats{}
	for _, threadID := range threads {
		n, err := s.rdb.LLen(ctx, threadKey(threadID)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count thread entries: %w", err)
		}
		if n == 0 {
			continue
		}
		stats.ThreadCount++
		stats.TotalEntries += int(n)

		newest, err := s.newestTimestamp(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if newest.After(stats.LastUpdated) {
			stats.LastUpdated = newest
		}
	}
	return stats, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// recentEntries returns up to n newest entries of a thread in wire shape.
func (s *RedisStore) recentEntries(ctx context.Context, threadID string, n int) ([]redisEntry, error) {
	raw, err := s.rdb.LRange(ctx, threadKey(threadID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent entries: %w", err)
	}

	out := make([]redisEntry, 0, len(raw))
	for _, item := range raw {
		var re redisEntry
		if err := json.Unmarshal([]byte(item), &re); err != nil {
			return nil, fmt.Errorf("failed to decode entry: %w", err)
		}
		out = append(out, re)
	}
	return out, nil
}

// newestTimestamp returns the head entry's timestamp, or the zero time
// for an empty thread.
func (s *RedisStore) newestTimestamp(ctx context.Context, threadID string) (time.Time, error) {
	head, err := s.rdb.LIndex(ctx, threadKey(threadID), 0).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read thread head: %w", err)
	}

	var re redisEntry
	if err := json.Unmarshal([]byte(head), &re); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode thread head: %w", err)
	}
	return re.Timestamp, nil
}
