package models

import "time"

// ConversationEntry is one committed refinement exchange. Entries are
// immutable once written: reruns of the same query append new entries
// rather than updating old ones.
type ConversationEntry struct {
	EntryID   string    `json:"entry_id"`
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`

	UserQuery  string    `json:"user_query"`
	QueryKind  QueryKind `json:"query_kind"`
	IsFollowup bool      `json:"is_followup"`

	// SpecialistOutputs maps each agent that produced text to its output.
	// Full-pipeline entries carry the successful specialists; shortcut
	// entries carry exactly the shortcut target.
	SpecialistOutputs map[Role]string `json:"specialist_outputs"`
	// ModeratorOutput is the moderator's consolidated text. Present on
	// full-pipeline entries only.
	ModeratorOutput string `json:"moderator_output,omitempty"`
	FinalAnswer     string `json:"final_answer"`

	RouteDecision    RouteDecision `json:"route_decision"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
	// Duplicate marks an entry whose final answer repeats a recent answer
	// in the same thread. Duplicates are stored, just tagged.
	Duplicate bool `json:"duplicate"`
}

// MemoryStats is a store-wide summary across all threads.
type MemoryStats struct {
	TotalEntries int       `json:"total_entries"`
	ThreadCount  int       `json:"thread_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ThreadStats summarizes a single conversation thread.
type ThreadStats struct {
	EntryCount  int       `json:"entry_count"`
	LastUpdated time.Time `json:"last_updated"`
}
