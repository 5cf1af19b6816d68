package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/refinehq/refinery/pkg/database"
	"github.com/refinehq/refinery/pkg/models"
)

// poolStatsReporter is implemented by store backends that expose
// connection pool statistics beyond the Ping reachability check.
type poolStatsReporter interface {
	Health(ctx context.Context) (*database.HealthStatus, error)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Store:      s.backend,
		ActiveRuns: s.orch.ActiveRuns(),
	}

	if pr, ok := s.store.(poolStatsReporter); ok {
		resp.Database, _ = pr.Health(ctx)
	}

	if err := s.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// agentRoster describes the fixed set of agents in the pipeline.
var agentRoster = []AgentInfo{
	{
		Role:        models.RoleDomain,
		Name:        "Domain Expert",
		Description: "Analyzes business logic, industry standards, compliance requirements, and domain-specific knowledge",
		Expertise:   []string{"Business Logic", "Industry Standards", "Compliance", "Market Analysis", "Domain Knowledge"},
	},
	{
		Role:        models.RoleUXUI,
		Name:        "UX/UI Specialist",
		Description: "Analyzes user experience requirements, interface design, accessibility, and usability",
		Expertise:   []string{"User Experience", "Interface Design", "Accessibility", "Usability", "User Research"},
	},
	{
		Role:        models.RoleTechnical,
		Name:        "Technical Architect",
		Description: "Analyzes technical architecture, system design, scalability, and implementation requirements",
		Expertise:   []string{"System Architecture", "Technology Stack", "Scalability", "Performance", "Security"},
	},
	{
		Role:        models.RoleRevenue,
		Name:        "Revenue Model Analyst",
		Description: "Analyzes revenue models, monetization strategies, pricing, and financial sustainability",
		Expertise:   []string{"Revenue Models", "Monetization", "Pricing Strategies", "Business Models", "Financial Analysis"},
	},
	{
		Role:        models.RoleModerator,
		Name:        "Moderator",
		Description: "Aggregates specialist feedback and resolves conflicts into one consolidated answer",
		Expertise:   []string{"Conflict Resolution", "Requirements Aggregation", "Priority Setting"},
	},
}

// agentsHandler handles GET /api/agents.
func (s *Server) agentsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, AgentsResponse{Agents: agentRoster})
}

// contextCheckHandler handles POST /api/context/check. It reports
// whether a thread already carries conversation history, so clients can
// flag a query as a follow-up before submitting it.
func (s *Server) contextCheckHandler(c *gin.Context) {
	var req ContextCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	hasContext, count, err := s.orch.HasContext(c.Request.Context(), req.ThreadID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ContextCheckResponse{
		HasContext:        hasContext,
		ThreadID:          req.ThreadID,
		ConversationCount: count,
	})
}
