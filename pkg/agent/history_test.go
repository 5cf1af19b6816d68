package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/refinehq/refinery/pkg/models"
)

func historyEntry(ts time.Time, query, answer string) *models.ConversationEntry {
	return &models.ConversationEntry{
		Timestamp:   ts,
		UserQuery:   query,
		FinalAnswer: answer,
	}
}

func TestRenderHistory(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	// Newest first, matching the memory store's List order.
	entries := []*models.ConversationEntry{
		historyEntry(base.Add(2*time.Minute), "third question", "third answer"),
		historyEntry(base.Add(time.Minute), "second question", "second answer"),
		historyEntry(base, "first question", "first answer"),
	}

	got := RenderHistory(entries, 10)
	want := "[2026-03-14T09:30:00Z] Q: first question / A: first answer\n\n" +
		"[2026-03-14T09:31:00Z] Q: second question / A: second answer\n\n" +
		"[2026-03-14T09:32:00Z] Q: third question / A: third answer"
	assert.Equal(t, want, got)
}

func TestRenderHistoryCapsAtLimit(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	entries := []*models.ConversationEntry{
		historyEntry(base.Add(2*time.Minute), "third question", "third answer"),
		historyEntry(base.Add(time.Minute), "second question", "second answer"),
		historyEntry(base, "first question", "first answer"),
	}

	got := RenderHistory(entries, 2)
	assert.NotContains(t, got, "first question")
	assert.Contains(t, got, "second question")
	assert.Contains(t, got, "third question")
	// Oldest of the kept window renders first.
	assert.Less(t, strings.Index(got, "second question"), strings.Index(got, "third question"))
}

func TestRenderHistoryEmpty(t *testing.T) {
	assert.Empty(t, RenderHistory(nil, 10))
	assert.Empty(t, RenderHistory([]*models.ConversationEntry{}, 10))
}
