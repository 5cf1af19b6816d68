package api

import (
	"github.com/refinehq/refinery/pkg/database"
	"github.com/refinehq/refinery/pkg/models"
)

// RefineResponse is returned by POST /api/refine-requirements.
type RefineResponse struct {
	FinalAnswer       string                 `json:"final_answer"`
	ProcessingTimeMS  int64                  `json:"processing_time_ms"`
	QueryKind         models.QueryKind       `json:"query_kind"`
	IsFollowup        bool                   `json:"is_followup"`
	SpecialistOutputs map[models.Role]string `json:"specialist_outputs"`
	ModeratorOutput   string                 `json:"moderator_output,omitempty"`
	ThreadID          string                 `json:"thread_id"`
	EntryID           string                 `json:"entry_id"`
}

func toRefineResponse(entry *models.ConversationEntry) RefineResponse {
	return RefineResponse{
		FinalAnswer:       entry.FinalAnswer,
		ProcessingTimeMS:  entry.ProcessingTimeMS,
		QueryKind:         entry.QueryKind,
		IsFollowup:        entry.IsFollowup,
		SpecialistOutputs: entry.SpecialistOutputs,
		ModeratorOutput:   entry.ModeratorOutput,
		ThreadID:          entry.ThreadID,
		EntryID:           entry.EntryID,
	}
}

// ThreadHistoryResponse is returned by GET /memory/:thread_id.
type ThreadHistoryResponse struct {
	Entries []*models.ConversationEntry `json:"entries"`
	Stats   models.ThreadStats          `json:"stats"`
}

// SearchResponse is returned by GET /memory/:thread_id/search.
type SearchResponse struct {
	Results []*models.ConversationEntry `json:"results"`
}

// ClearResponse is returned by DELETE /memory/:thread_id.
type ClearResponse struct {
	Cleared bool `json:"cleared"`
	Count   int  `json:"count"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	Store      string                 `json:"store"`
	ActiveRuns int                    `json:"active_runs"`
	Database   *database.HealthStatus `json:"database,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// AgentInfo describes one agent in the pipeline roster.
type AgentInfo struct {
	Role        models.Role `json:"role"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Expertise   []string    `json:"expertise"`
}

// AgentsResponse is returned by GET /api/agents.
type AgentsResponse struct {
	Agents []AgentInfo `json:"agents"`
}

// ContextCheckResponse is returned by POST /api/context/check.
type ContextCheckResponse struct {
	HasContext        bool   `json:"has_context"`
	ThreadID          string `json:"thread_id"`
	ConversationCount int    `json:"conversation_count"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
