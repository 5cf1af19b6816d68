package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseLimit reads the optional limit query parameter. Zero means no
// limit; invalid or negative values are rejected.
func parseLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}

// threadHistoryHandler handles GET /memory/:thread_id.
func (s *Server) threadHistoryHandler(c *gin.Context) {
	threadID := c.Param("thread_id")
	limit, ok := parseLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit: must be a non-negative integer"})
		return
	}

	entries, stats, err := s.orch.History(c.Request.Context(), threadID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ThreadHistoryResponse{Entries: entries, Stats: stats})
}

// threadSearchHandler handles GET /memory/:thread_id/search.
func (s *Server) threadSearchHandler(c *gin.Context) {
	threadID := c.Param("thread_id")
	limit, ok := parseLimit(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit: must be a non-negative integer"})
		return
	}

	results, err := s.orch.Search(c.Request.Context(), threadID, c.Query("q"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SearchResponse{Results: results})
}

// clearThreadHandler handles DELETE /memory/:thread_id.
func (s *Server) clearThreadHandler(c *gin.Context) {
	count, err := s.orch.Clear(c.Request.Context(), c.Param("thread_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ClearResponse{Cleared: true, Count: count})
}

// memoryStatsHandler handles GET /memory/stats.
func (s *Server) memoryStatsHandler(c *gin.Context) {
	stats, err := s.orch.MemoryStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
