package agent

import (
	"context"

	"github.com/refinehq/refinery/pkg/models"
)

// RunModerator consolidates the successful specialist outputs into one
// narrative carrying a "Final Answer:" section.
func RunModerator(ctx context.Context, a Analyzer, query string, outputs map[models.Role]string) (string, error) {
	return a.Analyze(ctx, AnalysisRequest{
		Role:   models.RoleModerator,
		System: SystemPrompt(models.RoleModerator),
		User:   ModeratorUserPrompt(query, outputs),
	})
}

// RunModeratorShortcut answers a follow-up that matched no specialist:
// a single moderator pass over the thread history instead of a fan-out.
func RunModeratorShortcut(ctx context.Context, a Analyzer, query, history string) (string, error) {
	return a.Analyze(ctx, AnalysisRequest{
		Role:   models.RoleModerator,
		System: SystemPrompt(models.RoleModerator),
		User:   ModeratorShortcutUserPrompt(query, history),
	})
}
