// Package models defines the domain types shared across the refinement
// pipeline: refinement requests, routing decisions, and persisted
// conversation entries.
package models

// QueryKind is the classifier's verdict about what a refinement query is
// mostly concerned with.
type QueryKind string

const (
	QueryKindGeneral   QueryKind = "general"
	QueryKindDomain    QueryKind = "domain"
	QueryKindUXUI      QueryKind = "ux_ui"
	QueryKindTechnical QueryKind = "technical"
	QueryKindRevenue   QueryKind = "revenue"
	// QueryKindDebate is accepted for wire compatibility but is never
	// produced by the classifier; debate-style consolidation is part of
	// the moderator contract.
	QueryKindDebate QueryKind = "debate"
)

// Valid reports whether k is a known query kind.
func (k QueryKind) Valid() bool {
	switch k {
	case QueryKindGeneral, QueryKindDomain, QueryKindUXUI, QueryKindTechnical, QueryKindRevenue, QueryKindDebate:
		return true
	}
	return false
}

// Role identifies an agent in the pipeline. The four specialist roles run
// in the fan-out stage; the moderator consolidates their output and can
// also serve as the single agent on a follow-up shortcut.
type Role string

const (
	RoleDomain    Role = "domain"
	RoleUXUI      Role = "ux_ui"
	RoleTechnical Role = "technical"
	RoleRevenue   Role = "revenue"
	RoleModerator Role = "moderator"
)

// SpecialistRoles returns the fan-out roles in their canonical dispatch
// order.
func SpecialistRoles() []Role {
	return []Role{RoleDomain, RoleUXUI, RoleTechnical, RoleRevenue}
}

// Valid reports whether r is a known agent role.
func (r Role) Valid() bool {
	switch r {
	case RoleDomain, RoleUXUI, RoleTechnical, RoleRevenue, RoleModerator:
		return true
	}
	return false
}

// RouteDecision records which path a request took through the pipeline:
// "full_pipeline" or "shortcut:<role>".
type RouteDecision string

// RouteFullPipeline is the route through all specialists plus the moderator.
const RouteFullPipeline RouteDecision = "full_pipeline"

const shortcutPrefix = "shortcut:"

// ShortcutRoute builds the route decision for a single-agent shortcut.
func ShortcutRoute(target Role) RouteDecision {
	return RouteDecision(shortcutPrefix + string(target))
}

// IsShortcut reports whether the route skipped the fan-out stage.
func (d RouteDecision) IsShortcut() bool {
	return len(d) > len(shortcutPrefix) && d[:len(shortcutPrefix)] == shortcutPrefix
}

// ShortcutTarget returns the role a shortcut route dispatched to, and
// whether the route was a shortcut at all.
func (d RouteDecision) ShortcutTarget() (Role, bool) {
	if !d.IsShortcut() {
		return "", false
	}
	return Role(d[len(shortcutPrefix):]), true
}

// Classification is the deterministic routing verdict computed at the
// start of every request.
type Classification struct {
	QueryKind  QueryKind `json:"query_kind"`
	IsFollowup bool      `json:"is_followup"`
	// ShortcutTarget is set when the request can skip the fan-out and run
	// a single agent. Empty means full pipeline.
	ShortcutTarget Role `json:"shortcut_target,omitempty"`
}

// Plan is the supervisor's dispatch plan derived from a classification.
type Plan struct {
	Specialists []Role `json:"specialists"`
	Moderate    bool   `json:"moderate"`
}

// Shortcut reports whether the plan dispatches a single agent without
// moderation.
func (p Plan) Shortcut() bool {
	return !p.Moderate && len(p.Specialists) == 1
}

// RefineRequest is a single requirements-refinement request entering the
// orchestrator.
type RefineRequest struct {
	// Query is the product idea or follow-up question to refine.
	Query string `json:"query"`
	// ThreadID groups requests into a conversation. Empty means a fresh
	// thread is allocated for this request.
	ThreadID string `json:"thread_id,omitempty"`
	// FocusHint optionally forces the classifier's verdict. One of
	// "general", "domain", "ux_ui", "technical", "revenue"; empty means
	// keyword-based classification.
	FocusHint string `json:"focus_hint,omitempty"`
}
