// Package agent contains the building blocks of the refinement
// pipeline: the classifier, the supervisor plan, the specialist and
// moderator adapters, and the Analyzer boundary they all talk through.
package agent

import (
	"context"

	"github.com/refinehq/refinery/pkg/models"
)

// AnalysisRequest is one prompt sent to the analysis backend.
type AnalysisRequest struct {
	// Role identifies the agent this call runs on behalf of. It is not
	// sent to the backend; it keys logging and test routing.
	Role models.Role
	// System frames the agent's perspective.
	System string
	// User carries the query plus any rendered conversation context.
	User string
}

// Analyzer is the single boundary between the pipeline and the
// language-analysis backend. Implementations map a prompt to text and
// must honor ctx cancellation and deadlines.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (string, error)
}
