// Package events defines the progress events emitted while a refinement
// request runs, and the bounded per-request stream that carries them to
// transports.
//
// Every run emits events in a fixed grammar. Full pipeline:
//
//	classification → supervisor_plan → specialist_start{role} (per role)
//	→ specialist_result{role} (completion order) → moderator_start
//	→ moderator_result → final_answer → complete
//
// Shortcut runs omit supervisor_plan and the moderator pair:
//
//	classification → specialist_start → specialist_result
//	→ final_answer → complete
//
// Exactly one terminal event ends every stream: complete on success,
// cancelled when the caller gave up, or error when the run failed. A
// storage failure is the one case where final_answer is still emitted
// before the error terminal.
package events

import "github.com/refinehq/refinery/pkg/models"

// Type discriminates progress events on the wire.
type Type string

const (
	TypeClassification   Type = "classification"
	TypeSupervisorPlan   Type = "supervisor_plan"
	TypeSpecialistStart  Type = "specialist_start"
	TypeSpecialistResult Type = "specialist_result"
	TypeModeratorStart   Type = "moderator_start"
	TypeModeratorResult  Type = "moderator_result"
	TypeFinalAnswer      Type = "final_answer"
	TypeComplete         Type = "complete"
	TypeCancelled        Type = "cancelled"
	TypeError            Type = "error"
)

// Event is a single progress event. Optional fields are populated
// according to the event type.
type Event struct {
	Type Type `json:"type"`

	// Role is set on specialist_start and specialist_result.
	Role models.Role `json:"role,omitempty"`
	// Content carries agent text on specialist_result, moderator_result
	// and final_answer.
	Content string `json:"content,omitempty"`

	// Classification is set on classification events.
	Classification *models.Classification `json:"classification,omitempty"`
	// Plan is set on supervisor_plan events.
	Plan *models.Plan `json:"plan,omitempty"`
	// Entry is the committed conversation entry, set on complete.
	Entry *models.ConversationEntry `json:"entry,omitempty"`

	// Kind and Message describe the failure on error events.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeComplete, TypeCancelled, TypeError:
		return true
	}
	return false
}

// Classification builds the classification event.
func Classification(c models.Classification) Event {
	return Event{Type: TypeClassification, Classification: &c}
}

// SupervisorPlan builds the supervisor_plan event.
func SupervisorPlan(p models.Plan) Event {
	return Event{Type: TypeSupervisorPlan, Plan: &p}
}

// SpecialistStart builds the specialist_start event for a role.
func SpecialistStart(role models.Role) Event {
	return Event{Type: TypeSpecialistStart, Role: role}
}

// SpecialistResult builds the specialist_result event carrying the
// role's output text.
func SpecialistResult(role models.Role, text string) Event {
	return Event{Type: TypeSpecialistResult, Role: role, Content: text}
}

// ModeratorStart builds the moderator_start event.
func ModeratorStart() Event {
	return Event{Type: TypeModeratorStart}
}

// ModeratorResult builds the moderator_result event carrying the
// consolidated text.
func ModeratorResult(text string) Event {
	return Event{Type: TypeModeratorResult, Content: text}
}

// FinalAnswer builds the final_answer event.
func FinalAnswer(text string) Event {
	return Event{Type: TypeFinalAnswer, Content: text}
}

// Complete builds the terminal complete event carrying the committed
// entry.
func Complete(entry *models.ConversationEntry) Event {
	return Event{Type: TypeComplete, Entry: entry}
}

// Cancelled builds the terminal cancelled event.
func Cancelled() Event {
	return Event{Type: TypeCancelled}
}

// Error builds the terminal error event.
func Error(kind, message string) Event {
	return Event{Type: TypeError, Kind: kind, Message: message}
}
