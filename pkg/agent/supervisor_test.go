package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/refinehq/refinery/pkg/models"
)

func TestBuildPlan(t *testing.T) {
	tests := []struct {
		name            string
		classification  models.Classification
		wantSpecialists []models.Role
		wantModerate    bool
	}{
		{
			name:            "fresh query fans out to all specialists",
			classification:  models.Classification{QueryKind: models.QueryKindGeneral},
			wantSpecialists: models.SpecialistRoles(),
			wantModerate:    true,
		},
		{
			name: "classified fresh query still fans out",
			classification: models.Classification{
				QueryKind: models.QueryKindRevenue,
			},
			wantSpecialists: models.SpecialistRoles(),
			wantModerate:    true,
		},
		{
			name: "shortcut target plans a single agent",
			classification: models.Classification{
				QueryKind:      models.QueryKindRevenue,
				IsFollowup:     true,
				ShortcutTarget: models.RoleRevenue,
			},
			wantSpecialists: []models.Role{models.RoleRevenue},
			wantModerate:    false,
		},
		{
			name: "moderator shortcut plans the moderator alone",
			classification: models.Classification{
				QueryKind:      models.QueryKindGeneral,
				IsFollowup:     true,
				ShortcutTarget: models.RoleModerator,
			},
			wantSpecialists: []models.Role{models.RoleModerator},
			wantModerate:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildPlan(tt.classification)
			assert.Equal(t, tt.wantSpecialists, plan.Specialists)
			assert.Equal(t, tt.wantModerate, plan.Moderate)
			assert.Equal(t, !tt.wantModerate, plan.Shortcut())
		})
	}
}

func TestPlanRoute(t *testing.T) {
	full := BuildPlan(models.Classification{QueryKind: models.QueryKindGeneral})
	assert.Equal(t, models.RouteFullPipeline, PlanRoute(full))

	shortcut := BuildPlan(models.Classification{
		IsFollowup:     true,
		ShortcutTarget: models.RoleUXUI,
	})
	assert.Equal(t, models.RouteDecision("shortcut:ux_ui"), PlanRoute(shortcut))

	target, ok := PlanRoute(shortcut).ShortcutTarget()
	assert.True(t, ok)
	assert.Equal(t, models.RoleUXUI, target)
}
