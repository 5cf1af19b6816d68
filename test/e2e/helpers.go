package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinehq/refinery/pkg/events"
	"github.com/refinehq/refinery/pkg/models"
)

// ────────────────────────────────────────────────────────────
// HTTP Client Helpers
// ────────────────────────────────────────────────────────────

// Refine posts a refinement request to the batch endpoint and returns
// the parsed response.
func (app *TestApp) Refine(t *testing.T, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/refine-requirements", body, expectedStatus)
}

// RefineQuery posts a plain query on a fresh thread, expecting success.
func (app *TestApp) RefineQuery(t *testing.T, query string) map[string]interface{} {
	t.Helper()
	return app.Refine(t, map[string]interface{}{"query": query}, http.StatusOK)
}

// CheckContext posts to /api/context/check and returns the parsed response.
func (app *TestApp) CheckContext(t *testing.T, threadID string) map[string]interface{} {
	t.Helper()
	return app.postJSON(t, "/api/context/check", map[string]string{"thread_id": threadID}, http.StatusOK)
}

// GetAgents calls GET /api/agents.
func (app *TestApp) GetAgents(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/api/agents", http.StatusOK)
}

// GetHealth calls GET /health.
func (app *TestApp) GetHealth(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/health", http.StatusOK)
}

// GetThreadHistory calls GET /memory/:thread_id.
func (app *TestApp) GetThreadHistory(t *testing.T, threadID string) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/memory/"+threadID, http.StatusOK)
}

// SearchThread calls GET /memory/:thread_id/search.
func (app *TestApp) SearchThread(t *testing.T, threadID, query string) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/memory/"+threadID+"/search?q="+url.QueryEscape(query), http.StatusOK)
}

// ClearThread calls DELETE /memory/:thread_id.
func (app *TestApp) ClearThread(t *testing.T, threadID string) map[string]interface{} {
	t.Helper()
	return app.doJSON(t, http.MethodDelete, "/memory/"+threadID, nil, http.StatusOK)
}

// GetMemoryStats calls GET /memory/stats.
func (app *TestApp) GetMemoryStats(t *testing.T) map[string]interface{} {
	t.Helper()
	return app.getJSON(t, "/memory/stats", http.StatusOK)
}

func (app *TestApp) postJSON(t *testing.T, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.doJSON(t, http.MethodPost, path, body, expectedStatus)
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int) map[string]interface{} {
	t.Helper()
	return app.doJSON(t, http.MethodGet, path, nil, expectedStatus)
}

func (app *TestApp) doJSON(t *testing.T, method, path string, body interface{}, expectedStatus int) map[string]interface{} {
	t.Helper()
	status, result, err := app.tryJSON(method, path, body)
	require.NoError(t, err, "%s %s", method, path)
	require.Equal(t, expectedStatus, status, "%s %s: unexpected status (body: %v)", method, path, result)
	return result
}

// tryJSON performs one JSON request without failing the test. Safe to
// call from non-test goroutines.
func (app *TestApp) tryJSON(method, path string, body interface{}) (int, map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, app.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, result, nil
}

// ────────────────────────────────────────────────────────────
// Store Query Helpers
// ────────────────────────────────────────────────────────────

// QueryThread returns all committed entries of a thread, newest first,
// read straight from the store.
func (app *TestApp) QueryThread(t *testing.T, threadID string) []*models.ConversationEntry {
	t.Helper()
	entries, err := app.Store.List(context.Background(), threadID, 0)
	require.NoError(t, err)
	return entries
}

// QueryStats returns store-wide totals read straight from the store.
func (app *TestApp) QueryStats(t *testing.T) models.MemoryStats {
	t.Helper()
	stats, err := app.Store.Stats(context.Background())
	require.NoError(t, err)
	return *stats
}

// ────────────────────────────────────────────────────────────
// Event Sequence Assertions
// ────────────────────────────────────────────────────────────

// expectedEvent is one step of an expected event sequence. Role is
// checked only when set. Members sharing a non-zero Group are matched
// as an unordered set against the stream positions they span.
type expectedEvent struct {
	Type  events.Type
	Role  models.Role
	Group int
}

// assertEventSequence verifies the stream matches the expected sequence
// exactly: same length, same order, except that members of an unordered
// group may arrive in any permutation within the group's span.
func assertEventSequence(t *testing.T, actual []events.Event, expected []expectedEvent) {
	t.Helper()
	require.Len(t, actual, len(expected), "event count mismatch:\n%s", formatEvents(actual))

	i := 0
	for i < len(expected) {
		group := expected[i].Group
		if group == 0 {
			assert.Truef(t, eventMatches(actual[i], expected[i]),
				"event %d: got type=%s role=%s, want type=%s role=%s",
				i, actual[i].Type, actual[i].Role, expected[i].Type, expected[i].Role)
			i++
			continue
		}

		// Collect the group's members and match them as a set against
		// the same span of actual events.
		start := i
		for i < len(expected) && expected[i].Group == group {
			i++
		}
		matched := make([]bool, i-start)
		for k := start; k < i; k++ {
			found := false
			for m := range matched {
				if !matched[m] && eventMatches(actual[k], expected[start+m]) {
					matched[m] = true
					found = true
					break
				}
			}
			assert.Truef(t, found,
				"event %d (type=%s role=%s) does not match any remaining member of group %d",
				k, actual[k].Type, actual[k].Role, group)
		}
	}
}

// eventMatches checks an actual event against an expected spec. Only
// set fields are compared.
func eventMatches(actual events.Event, expected expectedEvent) bool {
	if actual.Type != expected.Type {
		return false
	}
	if expected.Role != "" && actual.Role != expected.Role {
		return false
	}
	return true
}

// formatEvents renders a stream for failure messages.
func formatEvents(evs []events.Event) string {
	var b bytes.Buffer
	for i, ev := range evs {
		fmt.Fprintf(&b, "  [%d] type=%s", i, ev.Type)
		if ev.Role != "" {
			fmt.Fprintf(&b, " role=%s", ev.Role)
		}
		if ev.Kind != "" {
			fmt.Fprintf(&b, " kind=%s", ev.Kind)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// terminalEvent returns the last event of a stream, requiring it to be
// terminal.
func terminalEvent(t *testing.T, evs []events.Event) events.Event {
	t.Helper()
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	require.True(t, last.Terminal(), "last event %s is not terminal:\n%s", last.Type, formatEvents(evs))
	return last
}

// toInt converts a JSON-decoded numeric value (typically float64) to int.
func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// ────────────────────────────────────────────────────────────
// Script Presets
// ────────────────────────────────────────────────────────────

var cannedAnalyses = map[models.Role]string{
	models.RoleDomain:    "The market is crowded; differentiation and regulatory fit decide viability.",
	models.RoleUXUI:      "Order placement must stay under three taps, with live status the core screen.",
	models.RoleTechnical: "A dispatch service with event-driven order state keeps the system debuggable.",
	models.RoleRevenue:   "Commission per order plus a delivery fee covers courier costs at scale.",
}

// specialistText returns a canned analysis for a role.
func specialistText(role models.Role) string {
	return cannedAnalyses[role]
}

// scriptFullPipeline queues one full-pipeline round: four specialist
// analyses plus a moderator consolidation whose labeled section carries
// finalAnswer verbatim.
func scriptFullPipeline(a *ScriptedAnalyzer, finalAnswer string) {
	for _, role := range models.SpecialistRoles() {
		a.AddRouted(role, AnalysisScriptEntry{Text: specialistText(role)})
	}
	a.AddRouted(models.RoleModerator, AnalysisScriptEntry{
		Text: "**Consolidated Assessment**\n\nThe specialists agree on a phased rollout; feasibility follows the technical view.\n\nFinal Answer: " + finalAnswer,
	})
}
