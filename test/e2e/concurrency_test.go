package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinehq/refinery/pkg/models"
)

// ────────────────────────────────────────────────────────────
// Scenario 6: Concurrent identical queries on one thread
// ────────────────────────────────────────────────────────────

func TestE2E_ConcurrentSameThreadDuplicateTagging(t *testing.T) {
	analyzer := NewScriptedAnalyzer()

	// Gate the domain specialist so neither run can reach moderation
	// (and commit) before both have classified against the same empty
	// history.
	gate := make(chan struct{})
	onBlock := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		analyzer.AddRouted(models.RoleDomain, AnalysisScriptEntry{
			Text:    specialistText(models.RoleDomain),
			WaitCh:  gate,
			OnBlock: onBlock,
		})
	}
	for _, role := range []models.Role{models.RoleUXUI, models.RoleTechnical, models.RoleRevenue} {
		for i := 0; i < 2; i++ {
			analyzer.AddRouted(role, AnalysisScriptEntry{Text: specialistText(role)})
		}
	}
	for i := 0; i < 2; i++ {
		analyzer.AddRouted(models.RoleModerator, AnalysisScriptEntry{
			Text: "Both runs agree on the assessment.\n\nFinal Answer: Same consolidated answer.",
		})
	}

	app := NewTestApp(t, WithAnalyzer(analyzer))

	const threadID = "thread-concurrent-dup"
	body := map[string]interface{}{"query": "Build a food delivery app", "thread_id": threadID}

	type refineResult struct {
		status int
		resp   map[string]interface{}
		err    error
	}
	results := make(chan refineResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			status, resp, err := app.tryJSON(http.MethodPost, "/api/refine-requirements", body)
			results <- refineResult{status, resp, err}
		}()
	}

	for i := 0; i < 2; i++ {
		select {
		case <-onBlock:
		case <-time.After(5 * time.Second):
			t.Fatal("both runs never reached the fan-out")
		}
	}
	close(gate)

	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		require.Equal(t, http.StatusOK, r.status, "body: %v", r.resp)
		assert.Equal(t, false, r.resp["is_followup"])
		assert.Equal(t, threadID, r.resp["thread_id"])
	}

	// Both entries committed; exactly the later commit carries the
	// duplicate tag.
	entries := app.QueryThread(t, threadID)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].EntryID, entries[1].EntryID)
	duplicates := 0
	for _, e := range entries {
		assert.Equal(t, models.RouteFullPipeline, e.RouteDecision)
		assert.Equal(t, "Same consolidated answer.", e.FinalAnswer)
		if e.Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, duplicates)

	stats := app.QueryStats(t)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.ThreadCount)
}

// ────────────────────────────────────────────────────────────
// Concurrent runs on distinct threads stay isolated
// ────────────────────────────────────────────────────────────

func TestE2E_ConcurrentIndependentRuns(t *testing.T) {
	queries := []string{
		"Build a food delivery app",
		"Plan a marketplace for vintage furniture",
		"Create a workout tracking service",
	}

	analyzer := NewScriptedAnalyzer()
	for _, role := range models.SpecialistRoles() {
		for range queries {
			analyzer.AddRouted(role, AnalysisScriptEntry{Text: specialistText(role)})
		}
	}
	for range queries {
		analyzer.AddRouted(models.RoleModerator, AnalysisScriptEntry{
			Text: "Consensus reached.\n\nFinal Answer: Proceed.",
		})
	}

	app := NewTestApp(t, WithAnalyzer(analyzer))

	type refineResult struct {
		status int
		resp   map[string]interface{}
		err    error
	}
	results := make(chan refineResult, len(queries))
	for _, q := range queries {
		go func(query string) {
			status, resp, err := app.tryJSON(http.MethodPost, "/api/refine-requirements",
				map[string]interface{}{"query": query})
			results <- refineResult{status, resp, err}
		}(q)
	}

	threadIDs := make(map[string]bool)
	for range queries {
		r := <-results
		require.NoError(t, r.err)
		require.Equal(t, http.StatusOK, r.status, "body: %v", r.resp)
		threadID, _ := r.resp["thread_id"].(string)
		require.NotEmpty(t, threadID)
		threadIDs[threadID] = true
	}

	// Every run got its own fresh thread with exactly one entry.
	assert.Len(t, threadIDs, len(queries))
	for threadID := range threadIDs {
		entries := app.QueryThread(t, threadID)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Duplicate)
	}

	stats := app.QueryStats(t)
	assert.Equal(t, len(queries), stats.TotalEntries)
	assert.Equal(t, len(queries), stats.ThreadCount)

	require.Eventually(t, func() bool { return app.Orchestrator.ActiveRuns() == 0 },
		5*time.Second, 10*time.Millisecond)
}
