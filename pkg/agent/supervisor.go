package agent

import "github.com/refinehq/refinery/pkg/models"

// BuildPlan translates a classification into a dispatch plan. A shortcut
// target yields a single-agent plan with no moderation; anything else
// fans out to all specialists and moderates the results. The supervisor
// is stateless and reads no memory.
func BuildPlan(c models.Classification) models.Plan {
	if c.ShortcutTarget != "" {
		return models.Plan{
			Specialists: []models.Role{c.ShortcutTarget},
			Moderate:    false,
		}
	}
	return models.Plan{
		Specialists: models.SpecialistRoles(),
		Moderate:    true,
	}
}

// PlanRoute derives the persisted route decision for a plan.
func PlanRoute(p models.Plan) models.RouteDecision {
	if p.Shortcut() {
		return models.ShortcutRoute(p.Specialists[0])
	}
	return models.RouteFullPipeline
}
