package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinehq/refinery/pkg/agent/orchestrator"
	"github.com/refinehq/refinery/pkg/database"
	"github.com/refinehq/refinery/pkg/memory"
	"github.com/refinehq/refinery/pkg/models"
)

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, scriptedAnalyzer())

	rec := getPath(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "memory", resp.Store)
	assert.Zero(t, resp.ActiveRuns)
}

// unreachableStore fails Ping while delegating everything else.
type unreachableStore struct {
	memory.Store
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

// pooledStore reports connection pool statistics like the postgres
// backend does.
type pooledStore struct {
	memory.Store
}

func (pooledStore) Health(context.Context) (*database.HealthStatus, error) {
	return &database.HealthStatus{Status: "healthy", OpenConnections: 3, InUse: 1}, nil
}

func TestHealthEndpointPoolStats(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	orch := orchestrator.New(scriptedAnalyzer(), store, orchestrator.Config{
		HistoryContextLimit: 10,
		RequestTimeout:      time.Second,
	})
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	s := NewServer(orch, pooledStore{store}, "test", "postgres")

	rec := getPath(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Database)
	assert.Equal(t, "healthy", resp.Database.Status)
	assert.Equal(t, 3, resp.Database.OpenConnections)
}

func TestHealthEndpointDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	orch := orchestrator.New(scriptedAnalyzer(), store, orchestrator.Config{
		HistoryContextLimit: 10,
		RequestTimeout:      time.Second,
	})
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	s := NewServer(orch, unreachableStore{store}, "test", "postgres")

	rec := getPath(t, s, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "postgres", resp.Store)
	assert.Contains(t, resp.Error, "connection refused")
}

func TestAgentsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, scriptedAnalyzer())

	rec := getPath(t, s, "/api/agents")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AgentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Agents, 5)

	roles := make([]models.Role, len(resp.Agents))
	for i, a := range resp.Agents {
		roles[i] = a.Role
		assert.NotEmpty(t, a.Name)
		assert.NotEmpty(t, a.Description)
		assert.NotEmpty(t, a.Expertise)
	}
	assert.ElementsMatch(t, []models.Role{
		models.RoleDomain, models.RoleUXUI, models.RoleTechnical, models.RoleRevenue, models.RoleModerator,
	}, roles)
}

func TestContextCheckEndpoint(t *testing.T) {
	s, store := newTestServer(t, scriptedAnalyzer())
	seedEntries(t, store, "thread-ctx", 2)

	t.Run("thread with history", func(t *testing.T) {
		rec := postJSON(t, s, "/api/context/check", ContextCheckRequest{ThreadID: "thread-ctx"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ContextCheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.HasContext)
		assert.Equal(t, "thread-ctx", resp.ThreadID)
		assert.Equal(t, 2, resp.ConversationCount)
	})

	t.Run("unknown thread", func(t *testing.T) {
		rec := postJSON(t, s, "/api/context/check", ContextCheckRequest{ThreadID: "thread-unknown"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ContextCheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.HasContext)
		assert.Zero(t, resp.ConversationCount)
	})

	t.Run("blank thread id", func(t *testing.T) {
		rec := postJSON(t, s, "/api/context/check", ContextCheckRequest{ThreadID: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
