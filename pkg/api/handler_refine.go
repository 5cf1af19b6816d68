package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refinehq/refinery/pkg/agent/orchestrator"
	"github.com/refinehq/refinery/pkg/events"
	"github.com/refinehq/refinery/pkg/models"
)

// refineHandler handles POST /api/refine-requirements. It runs the full
// pipeline to completion and returns the committed entry as one JSON
// response, discarding intermediate progress events.
func (s *Server) refineHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.RefineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ch, err := s.orch.Run(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}

	var terminal events.Event
	for ev := range ch {
		if ev.Terminal() {
			terminal = ev
		}
	}

	switch terminal.Type {
	case events.TypeComplete:
		c.JSON(http.StatusOK, toRefineResponse(terminal.Entry))
	case events.TypeCancelled:
		c.JSON(statusClientClosedRequest, ErrorResponse{Error: "request cancelled", Kind: "cancelled"})
	case events.TypeError:
		c.JSON(statusForKind(orchestrator.Kind(terminal.Kind)), ErrorResponse{Error: terminal.Message, Kind: terminal.Kind})
	default:
		// Stream ended without a terminal event; treat as internal.
		slog.ErrorContext(ctx, "Event stream ended without terminal event")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Kind: "internal"})
	}
}
