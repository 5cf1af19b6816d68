package agent

import (
	"context"

	"github.com/refinehq/refinery/pkg/models"
)

// RunSpecialist invokes one specialist role against the query. The
// rendered history may be empty on the first entry of a thread.
func RunSpecialist(ctx context.Context, a Analyzer, role models.Role, query, history string) (string, error) {
	return a.Analyze(ctx, AnalysisRequest{
		Role:   role,
		System: SystemPrompt(role),
		User:   SpecialistUserPrompt(query, history),
	})
}
