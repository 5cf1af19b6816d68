package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/refinehq/refinery/pkg/models"
)

// InMemoryStore keeps conversation entries in process memory. It is the
// default backend for local development and tests; contents are lost on
// restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]storedEntry // oldest first
	ids     map[string]struct{}
	window  int
}

type storedEntry struct {
	entry       models.ConversationEntry
	fingerprint string
}

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore(opts Options) *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string][]storedEntry),
		ids:     make(map[string]struct{}),
		window:  opts.DuplicateWindow,
	}
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, entry *models.ConversationEntry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[entry.EntryID]; exists {
		return nil
	}

	thread := s.threads[entry.ThreadID]

	fp := Fingerprint(entry.FinalAnswer)
	for i := len(thread) - 1; i >= 0 && i >= len(thread)-s.window; i-- {
		if thread[i].fingerprint == fp {
			entry.Duplicate = true
			break
		}
	}

	// Keep per-thread timestamps strictly increasing so listings are
	// strictly decreasing, even when two commits land in the same tick.
	if n := len(thread); n > 0 {
		if newest := thread[n-1].entry.Timestamp; !entry.Timestamp.After(newest) {
			entry.Timestamp = newest.Add(time.Nanosecond)
		}
	}

	s.threads[entry.ThreadID] = append(thread, storedEntry{
		entry:       copyEntry(entry),
		fingerprint: fp,
	})
	s.ids[entry.EntryID] = struct{}{}

	return nil
}

// List implements Store.
func (s *InMemoryStore) List(_ context.Context, threadID string, limit int) ([]*models.ConversationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread := s.threads[threadID]
	n := len(thread)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*models.ConversationEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		e := copyEntry(&thread[i].entry)
		out = append(out, &e)
	}
	return out, nil
}

// Search implements Store.
func (s *InMemoryStore) Search(_ context.Context, threadID, query string, limit int) ([]*models.ConversationEntry, error) {
	needle := strings.ToLower(query)

	s.mu.RLock()
	var matches []*models.ConversationEntry
	for i := range s.threads[threadID] {
		e := &s.threads[threadID][i].entry
		if strings.Contains(strings.ToLower(e.UserQuery), needle) ||
			strings.Contains(strings.ToLower(e.FinalAnswer), needle) {
			c := copyEntry(e)
			matches = append(matches, &c)
		}
	}
	s.mu.RUnlock()

	sortSearchResults(matches)

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteThread implements Store.
func (s *InMemoryStore) DeleteThread(_ context.Context, threadID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.threads[threadID]
	for i := range thread {
		delete(s.ids, thread[i].entry.EntryID)
	}
	delete(s.threads, threadID)

	return len(thread), nil
}

// Stats implements Store.
func (s *InMemoryStore) Stats(_ context.Context) (*models.MemoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.MemoryStats{
		TotalEntries: len(s.ids),
		ThreadCount:  len(s.threads),
	}
	for _, thread := range s.threads {
		if n := len(thread); n > 0 {
			if ts := thread[n-1].entry.Timestamp; ts.After(stats.LastUpdated) {
				stats.LastUpdated = ts
			}
		}
	}
	return stats, nil
}

// Ping implements Store.
func (s *InMemoryStore) Ping(context.Context) error { return nil }

// Close implements Store.
func (s *InMemoryStore) Close() error { return nil }

// copyEntry detaches an entry from the caller, including its outputs map.
func copyEntry(e *models.ConversationEntry) models.ConversationEntry {
	c := *e
	if e.SpecialistOutputs != nil {
		c.SpecialistOutputs = maps.Clone(e.SpecialistOutputs)
	}
	return c
}

// sortSearchResults orders matches most recent first, ties broken by
// entry_id lexicographically.
func sortSearchResults(matches []*models.ConversationEntry) {
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].Timestamp.Equal(matches[j].Timestamp) {
			return matches[i].Timestamp.After(matches[j].Timestamp)
		}
		return matches[i].EntryID < matches[j].EntryID
	})
}
