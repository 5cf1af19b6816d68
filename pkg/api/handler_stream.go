package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refinehq/refinery/pkg/models"
)

// refineStreamHandler handles POST /api/refine-requirements/stream. Each
// orchestrator event is written as one server-sent-event record. The run
// is bound to the request context, so a client that closes the
// connection cancels the pipeline.
func (s *Server) refineStreamHandler(c *gin.Context) {
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

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for ev := range ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to marshal event", "type", ev.Type, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			// Client went away. Keep draining so the producer can finish;
			// the canceled request context is already stopping the run.
			continue
		}
		c.Writer.Flush()
	}
}
