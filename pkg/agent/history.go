package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/refinehq/refinery/pkg/models"
)

// RenderHistory formats prior thread entries for inclusion in prompts.
// Entries arrive newest first, as the memory store lists them; the
// rendering is capped at the most recent limit entries and emitted
// oldest first, one block per entry joined by blank lines.
func RenderHistory(entries []*models.ConversationEntry, limit int) string {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		blocks = append(blocks, fmt.Sprintf("[%s] Q: %s / A: %s",
			e.Timestamp.UTC().Format(time.RFC3339), e.UserQuery, e.FinalAnswer))
	}
	return strings.Join(blocks, "\n\n")
}
