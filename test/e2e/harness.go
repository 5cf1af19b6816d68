// Package e2e provides end-to-end test infrastructure for the
// refinement pipeline: a full application instance on a real HTTP port,
// a scripted analyzer in place of the LLM backend, and an SSE client
// for the streaming endpoint.
package e2e

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/refinehq/refinery/pkg/agent"
	"github.com/refinehq/refinery/pkg/agent/orchestrator"
	"github.com/refinehq/refinery/pkg/api"
	"github.com/refinehq/refinery/pkg/memory"
)

// retryAttempts is how many times the wrapped analyzer tries each call.
// Failure scripts queue this many entries per failing role.
const retryAttempts = 2

// TestApp boots a complete refinery instance for e2e testing.
type TestApp struct {
	// Mocks / test wiring
	Analyzer *ScriptedAnalyzer

	// Real infrastructure
	Store        memory.Store
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	analyzer       *ScriptedAnalyzer
	store          memory.Store
	requestTimeout time.Duration
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithAnalyzer sets a pre-scripted analyzer.
func WithAnalyzer(a *ScriptedAnalyzer) TestAppOption {
	return func(c *testAppConfig) { c.analyzer = a }
}

// WithStore injects a pre-created store, skipping the default in-memory
// one. Used for tests that inject failures or run against another
// backend.
func WithStore(s memory.Store) TestAppOption {
	return func(c *testAppConfig) { c.store = s }
}

// WithRequestTimeout sets the per-run deadline.
func WithRequestTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.requestTimeout = d }
}

// NewTestApp creates and starts a full refinery test instance on an
// ephemeral port. Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}

	if tc.analyzer == nil {
		tc.analyzer = NewScriptedAnalyzer()
	}
	if tc.store == nil {
		tc.store = memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	}

	// The analyzer is wrapped with retry exactly as in production, so
	// scripts for transient failures get a second attempt per role.
	// Call counts on the scripted analyzer include those retries.
	retrying := agent.WithRetry(tc.analyzer, agent.RetryConfig{
		MaxAttempts: retryAttempts,
		BaseDelay:   5 * time.Millisecond,
	})

	orch := orchestrator.New(retrying, tc.store, orchestrator.Config{
		HistoryContextLimit: 10,
		RequestTimeout:      tc.requestTimeout,
	})

	server := api.NewServer(orch, tc.store, "e2e-test", "memory")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	app := &TestApp{
		Analyzer:     tc.analyzer,
		Store:        tc.store,
		Orchestrator: orch,
		Server:       server,
		BaseURL:      fmt.Sprintf("http://%s", ln.Addr().String()),
		t:            t,
	}

	// Register cleanup in reverse-creation order.
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = orch.Shutdown(shutdownCtx)
		_ = tc.store.Close()
	})

	return app
}
