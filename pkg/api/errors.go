package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refinehq/refinery/pkg/agent"
	"github.com/refinehq/refinery/pkg/agent/orchestrator"
)

// statusClientClosedRequest is the nginx convention for a request the
// client abandoned before a response was written.
const statusClientClosedRequest = 499

// statusForKind maps a run failure kind to its HTTP status.
func statusForKind(kind orchestrator.Kind) int {
	switch kind {
	case orchestrator.KindInvalidInput:
		return http.StatusBadRequest
	case orchestrator.KindUpstreamUnavailable:
		return http.StatusBadGateway
	case orchestrator.KindTimeout:
		return http.StatusGatewayTimeout
	case orchestrator.KindCancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps orchestration errors to HTTP error responses.
func writeError(c *gin.Context, err error) {
	var validErr *agent.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: validErr.Error(),
			Kind:  string(orchestrator.KindInvalidInput),
		})
		return
	}

	kind := orchestrator.KindOf(err)
	if kind == orchestrator.KindInternal {
		// Unexpected error
		slog.Error("Unexpected orchestration error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Kind:  string(kind),
		})
		return
	}

	c.JSON(statusForKind(kind), ErrorResponse{
		Error: err.Error(),
		Kind:  string(kind),
	})
}
