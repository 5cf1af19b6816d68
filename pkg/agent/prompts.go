package agent

import (
	"fmt"
	"strings"

	"github.com/refinehq/refinery/pkg/models"
)

// System prompts bind each role to its analytical lens. The moderator
// prompt carries the consolidation contract: per-role summaries, the
// contradiction precedence rules, and a closing "Final Answer:" section
// that the finalizer extracts.
const (
	domainSystemPrompt = `You are a domain expert analyzing product requirements.
Assess the query from a business-domain perspective: industry context,
market positioning, regulatory and compliance constraints, and the
domain-specific requirements the product must satisfy. Be concrete and
name the assumptions you make.`

	uxuiSystemPrompt = `You are a UX/UI specialist analyzing product requirements.
Assess the query from a user-experience perspective: user journeys,
interface and interaction design, usability risks, and accessibility
requirements. Be concrete and name the assumptions you make.`

	technicalSystemPrompt = `You are a technical architect analyzing product requirements.
Assess the query from an engineering perspective: system architecture,
data model, integration surface, scalability and operational concerns.
Be concrete and name the assumptions you make.`

	revenueSystemPrompt = `You are a revenue model analyst analyzing product requirements.
Assess the query from a monetization perspective: pricing models,
revenue streams, cost structure, and the financial viability of the
proposed product. Be concrete and name the assumptions you make.`

	moderatorSystemPrompt = `You are the moderator consolidating specialist analyses of a product
requirement into one coherent assessment.

Summarize the key claims of each analysis you are given. Where analyses
contradict each other, resolve the conflict by precedence: on questions
of feasibility, trust technical > domain > ux_ui > revenue; on questions
of market fit or positioning, trust domain > revenue > ux_ui > technical;
otherwise merge the views without ranking them.

Write a single narrative and end it with a section labeled exactly
"Final Answer:" containing the consolidated recommendation.`
)

// SystemPrompt returns the system prompt bound to a role.
func SystemPrompt(role models.Role) string {
	switch role {
	case models.RoleDomain:
		return domainSystemPrompt
	case models.RoleUXUI:
		return uxuiSystemPrompt
	case models.RoleTechnical:
		return technicalSystemPrompt
	case models.RoleRevenue:
		return revenueSystemPrompt
	case models.RoleModerator:
		return moderatorSystemPrompt
	}
	return ""
}

// roleHeading labels a specialist's output in the moderator prompt.
var roleHeading = map[models.Role]string{
	models.RoleDomain:    "Domain expert analysis",
	models.RoleUXUI:      "UX/UI specialist analysis",
	models.RoleTechnical: "Technical architect analysis",
	models.RoleRevenue:   "Revenue model analyst analysis",
}

// SpecialistUserPrompt renders the user-facing half of a specialist
// call: the query, preceded by prior thread context when there is any.
func SpecialistUserPrompt(query, history string) string {
	if history == "" {
		return fmt.Sprintf("Product requirement query:\n%s", query)
	}
	return fmt.Sprintf("Previous conversation context:\n%s\n\nProduct requirement query:\n%s", history, query)
}

// ModeratorUserPrompt renders the consolidation input: the original
// query plus each successful specialist's output in canonical role
// order. Roles absent from outputs were not invoked or failed.
func ModeratorUserPrompt(query string, outputs map[models.Role]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product requirement query:\n%s\n", query)
	for _, role := range models.SpecialistRoles() {
		text, ok := outputs[role]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", roleHeading[role], text)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ModeratorShortcutUserPrompt renders the input for a follow-up that
// carries no specialist signal: one consolidation pass over the thread
// so far, answering the new question from accumulated state.
func ModeratorShortcutUserPrompt(query, history string) string {
	if history == "" {
		return fmt.Sprintf("Follow-up question:\n%s", query)
	}
	return fmt.Sprintf("Previous conversation context:\n%s\n\nFollow-up question:\n%s\n\nAnswer the follow-up using the conversation so far.", history, query)
}
