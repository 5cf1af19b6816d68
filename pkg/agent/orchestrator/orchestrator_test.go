package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinehq/refinery/pkg/agent"
	"github.com/refinehq/refinery/pkg/events"
	"github.com/refinehq/refinery/pkg/memory"
	"github.com/refinehq/refinery/pkg/models"
)

// routedAnalyzer calls fn per request and records every request it saw.
type routedAnalyzer struct {
	mu    sync.Mutex
	calls []agent.AnalysisRequest
	fn    func(ctx context.Context, req agent.AnalysisRequest) (string, error)
}

func (a *routedAnalyzer) Analyze(ctx context.Context, req agent.AnalysisRequest) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	a.mu.Unlock()
	return a.fn(ctx, req)
}

func (a *routedAnalyzer) callsFor(role models.Role) []agent.AnalysisRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []agent.AnalysisRequest
	for _, call := range a.calls {
		if call.Role == role {
			out = append(out, call)
		}
	}
	return out
}

// happyAnalyzer produces role-labeled analyses and a moderator
// consolidation carrying a Final Answer section.
func happyAnalyzer() *routedAnalyzer {
	return &routedAnalyzer{fn: func(_ context.Context, req agent.AnalysisRequest) (string, error) {
		if req.Role == models.RoleModerator {
			return "The views align.\nFinal Answer: Build it lean.", nil
		}
		return string(req.Role) + " analysis", nil
	}}
}

func testConfig() Config {
	return Config{
		HistoryContextLimit: 10,
		RequestTimeout:      5 * time.Second,
		EventBufferSize:     64,
	}
}

// collectEvents drains the stream until it closes.
func collectEvents(t *testing.T, ch <-chan events.Event) []events.Event {
	t.Helper()
	var got []events.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("stream did not close; %d events so far", len(got))
		}
	}
}

func eventTypes(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func indexOfType(evs []events.Event, typ events.Type) int {
	for i, ev := range evs {
		if ev.Type == typ {
			return i
		}
	}
	return -1
}

func TestRunFullPipeline(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := happyAnalyzer()
	o := New(analyzer, store, testConfig())

	ch, err := o.Run(context.Background(), models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	require.NotEmpty(t, evs)

	// Vocabulary and coarse ordering.
	assert.Equal(t, events.TypeClassification, evs[0].Type)
	require.NotNil(t, evs[0].Classification)
	assert.Equal(t, models.QueryKindGeneral, evs[0].Classification.QueryKind)
	assert.False(t, evs[0].Classification.IsFollowup)

	assert.Equal(t, events.TypeSupervisorPlan, evs[1].Type)
	require.NotNil(t, evs[1].Plan)
	assert.Equal(t, models.SpecialistRoles(), evs[1].Plan.Specialists)
	assert.True(t, evs[1].Plan.Moderate)

	var starts, results []models.Role
	for _, ev := range evs {
		switch ev.Type {
		case events.TypeSpecialistStart:
			starts = append(starts, ev.Role)
		case events.TypeSpecialistResult:
			results = append(results, ev.Role)
		}
	}
	assert.ElementsMatch(t, models.SpecialistRoles(), starts)
	assert.ElementsMatch(t, models.SpecialistRoles(), results)

	// All results precede moderator_start; final_answer precedes complete.
	moderatorStartAt := indexOfType(evs, events.TypeModeratorStart)
	require.GreaterOrEqual(t, moderatorStartAt, 0)
	for i, ev := range evs {
		if ev.Type == events.TypeSpecialistResult {
			assert.Less(t, i, moderatorStartAt)
		}
	}
	finalAt := indexOfType(evs, events.TypeFinalAnswer)
	completeAt := indexOfType(evs, events.TypeComplete)
	require.GreaterOrEqual(t, finalAt, 0)
	require.GreaterOrEqual(t, completeAt, 0)
	assert.Less(t, finalAt, completeAt)
	assert.Equal(t, "Build it lean.", evs[finalAt].Content)

	// Terminal payload.
	last := evs[len(evs)-1]
	require.Equal(t, events.TypeComplete, last.Type)
	require.NotNil(t, last.Entry)
	entry := last.Entry
	assert.NotEmpty(t, entry.EntryID)
	assert.NotEmpty(t, entry.ThreadID)
	assert.Equal(t, models.RouteFullPipeline, entry.RouteDecision)
	assert.Len(t, entry.SpecialistOutputs, 4)
	assert.Equal(t, "The views align.\nFinal Answer: Build it lean.", entry.ModeratorOutput)
	assert.Equal(t, "Build it lean.", entry.FinalAnswer)
	assert.False(t, entry.IsFollowup)
	assert.GreaterOrEqual(t, entry.ProcessingTimeMS, int64(0))

	// Moderator ran once, over all four outputs.
	moderatorCalls := analyzer.callsFor(models.RoleModerator)
	require.Len(t, moderatorCalls, 1)
	for _, role := range models.SpecialistRoles() {
		assert.Contains(t, moderatorCalls[0].User, string(role)+" analysis")
	}

	// Persisted.
	listed, err := store.List(context.Background(), entry.ThreadID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, entry.EntryID, listed[0].EntryID)
}

func TestRunShortcutFollowup(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := happyAnalyzer()
	o := New(analyzer, store, testConfig())

	require.NoError(t, store.Append(context.Background(), &models.ConversationEntry{
		EntryID:       "prior-entry",
		ThreadID:      "thread-1",
		Timestamp:     time.Now().UTC().Add(-time.Minute),
		UserQuery:     "Build a food delivery app",
		QueryKind:     models.QueryKindGeneral,
		FinalAnswer:   "Build it lean.",
		RouteDecision: models.RouteFullPipeline,
		SpecialistOutputs: map[models.Role]string{
			models.RoleDomain: "domain analysis",
		},
		ModeratorOutput: "The views align.",
	}))

	ch, err := o.Run(context.Background(), models.RefineRequest{
		Query:    "What pricing strategy should I use?",
		ThreadID: "thread-1",
	})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	assert.Equal(t, []events.Type{
		events.TypeClassification,
		events.TypeSpecialistStart,
		events.TypeSpecialistResult,
		events.TypeFinalAnswer,
		events.TypeComplete,
	}, eventTypes(evs))

	require.NotNil(t, evs[0].Classification)
	assert.Equal(t, models.QueryKindRevenue, evs[0].Classification.QueryKind)
	assert.True(t, evs[0].Classification.IsFollowup)
	assert.Equal(t, models.RoleRevenue, evs[0].Classification.ShortcutTarget)
	assert.Equal(t, models.RoleRevenue, evs[1].Role)

	entry := evs[len(evs)-1].Entry
	require.NotNil(t, entry)
	assert.Equal(t, models.RouteDecision("shortcut:revenue"), entry.RouteDecision)
	assert.Equal(t, map[models.Role]string{models.RoleRevenue: "revenue analysis"}, entry.SpecialistOutputs)
	assert.Empty(t, entry.ModeratorOutput)
	assert.Equal(t, "revenue analysis", entry.FinalAnswer)
	assert.True(t, entry.IsFollowup)

	// The specialist saw the thread history.
	revenueCalls := analyzer.callsFor(models.RoleRevenue)
	require.Len(t, revenueCalls, 1)
	assert.Contains(t, revenueCalls[0].User, "Build a food delivery app")
	assert.Contains(t, revenueCalls[0].User, "Previous conversation context")
}

func TestRunModeratorShortcut(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := &routedAnalyzer{fn: func(_ context.Context, req agent.AnalysisRequest) (string, error) {
		if req.Role != models.RoleModerator {
			return "", fmt.Errorf("unexpected role %s", req.Role)
		}
		return "All of it adds up to a focused MVP.", nil
	}}
	o := New(analyzer, store, testConfig())

	require.NoError(t, store.Append(context.Background(), &models.ConversationEntry{
		EntryID:       "prior-entry",
		ThreadID:      "thread-2",
		Timestamp:     time.Now().UTC().Add(-time.Minute),
		UserQuery:     "Build a food delivery app",
		QueryKind:     models.QueryKindGeneral,
		FinalAnswer:   "Build it lean.",
		RouteDecision: models.RouteFullPipeline,
	}))

	ch, err := o.Run(context.Background(), models.RefineRequest{
		Query:    "Can you summarize all of that?",
		ThreadID: "thread-2",
	})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	entry := evs[len(evs)-1].Entry
	require.NotNil(t, entry)
	assert.Equal(t, models.RouteDecision("shortcut:moderator"), entry.RouteDecision)
	assert.Equal(t, map[models.Role]string{models.RoleModerator: "All of it adds up to a focused MVP."}, entry.SpecialistOutputs)
	assert.Empty(t, entry.ModeratorOutput)
	assert.Equal(t, "All of it adds up to a focused MVP.", entry.FinalAnswer)
}

func TestRunValidation(t *testing.T) {
	o := New(happyAnalyzer(), memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5}), testConfig())

	tests := []struct {
		name string
		req  models.RefineRequest
	}{
		{name: "empty query", req: models.RefineRequest{Query: ""}},
		{name: "whitespace query", req: models.RefineRequest{Query: "   \n"}},
		{name: "unknown focus hint", req: models.RefineRequest{Query: "Build something", FocusHint: "finance"}},
		{name: "debate is not a focus hint", req: models.RefineRequest{Query: "Build something", FocusHint: "debate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := o.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, ch)
			assert.True(t, errors.Is(err, agent.ErrInvalidInput))
			assert.True(t, agent.IsValidationError(err))
		})
	}
}

func TestRunAllSpecialistsFail(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := &routedAnalyzer{fn: func(_ context.Context, _ agent.AnalysisRequest) (string, error) {
		return "", errors.New("backend down")
	}}
	o := New(analyzer, store, testConfig())

	ch, err := o.Run(context.Background(), models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	last := evs[len(evs)-1]
	require.Equal(t, events.TypeError, last.Type)
	assert.Equal(t, string(KindUpstreamUnavailable), last.Kind)
	assert.Contains(t, last.Message, "all specialists failed")

	assert.Equal(t, -1, indexOfType(evs, events.TypeSpecialistResult))
	assert.Equal(t, -1, indexOfType(evs, events.TypeModeratorStart))
	assert.Equal(t, -1, indexOfType(evs, events.TypeComplete))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
}

func TestRunSingleSpecialistFailureIsRecovered(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := &routedAnalyzer{fn: func(_ context.Context, req agent.AnalysisRequest) (string, error) {
		switch req.Role {
		case models.RoleTechnical:
			return "", errors.New("backend down")
		case models.RoleModerator:
			return "Three views, one direction.\nFinal Answer: Proceed.", nil
		default:
			return string(req.Role) + " analysis", nil
		}
	}}
	o := New(analyzer, store, testConfig())

	ch, err := o.Run(context.Background(), models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	entry := evs[len(evs)-1].Entry
	require.NotNil(t, entry)
	assert.Len(t, entry.SpecialistOutputs, 3)
	assert.NotContains(t, entry.SpecialistOutputs, models.RoleTechnical)
	assert.Equal(t, "Proceed.", entry.FinalAnswer)

	moderatorCalls := analyzer.callsFor(models.RoleModerator)
	require.Len(t, moderatorCalls, 1)
	assert.NotContains(t, moderatorCalls[0].User, "Technical architect analysis")
}

func TestRunModeratorFailureFallsBack(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := &routedAnalyzer{fn: func(_ context.Context, req agent.AnalysisRequest) (string, error) {
		if req.Role == models.RoleModerator {
			return "", errors.New("backend down")
		}
		return string(req.Role) + " analysis", nil
	}}
	o := New(analyzer, store, testConfig())

	ch, err := o.Run(context.Background(), models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	last := evs[len(evs)-1]
	require.Equal(t, events.TypeComplete, last.Type)
	entry := last.Entry
	require.NotNil(t, entry)

	// Domain is dispatched first, so its text stands in.
	assert.Equal(t, "domain analysis", entry.ModeratorOutput)
	assert.Equal(t, "domain analysis", entry.FinalAnswer)

	moderatorResultAt := indexOfType(evs, events.TypeModeratorResult)
	require.GreaterOrEqual(t, moderatorResultAt, 0)
	assert.Equal(t, "domain analysis", evs[moderatorResultAt].Content)
}

func TestRunTimeout(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := &routedAnalyzer{fn: func(ctx context.Context, _ agent.AnalysisRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cfg := testConfig()
	cfg.RequestTimeout = 25 * time.Millisecond
	o := New(analyzer, store, cfg)

	ch, err := o.Run(context.Background(), models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	last := evs[len(evs)-1]
	require.Equal(t, events.TypeError, last.Type)
	assert.Equal(t, string(KindTimeout), last.Kind)
	assert.Equal(t, "request deadline exceeded", last.Message)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
}

func TestRunCancelledBeforeModerationPersistsNothing(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := &routedAnalyzer{fn: func(ctx context.Context, req agent.AnalysisRequest) (string, error) {
		if req.Role == models.RoleModerator {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return string(req.Role) + " analysis", nil
	}}
	o := New(analyzer, store, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := o.Run(ctx, models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	var evs []events.Event
	results := 0
	timeout := time.After(10 * time.Second)
	for results < 4 {
		select {
		case ev := <-ch:
			evs = append(evs, ev)
			if ev.Type == events.TypeSpecialistResult {
				results++
			}
		case <-timeout:
			t.Fatal("never saw four specialist results")
		}
	}
	cancel()

	evs = append(evs, collectEvents(t, ch)...)
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeCancelled, last.Type)
	assert.Equal(t, -1, indexOfType(evs, events.TypeComplete))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
}

// failingStore delegates to an inner store but fails Append.
type failingStore struct {
	memory.Store
	appendErr error
}

func (s *failingStore) Append(ctx context.Context, entry *models.ConversationEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.Store.Append(ctx, entry)
}

func TestRunStorageFailureStillEmitsFinalAnswer(t *testing.T) {
	store := &failingStore{
		Store:     memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5}),
		appendErr: errors.New("disk full"),
	}
	o := New(happyAnalyzer(), store, testConfig())

	ch, err := o.Run(context.Background(), models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	finalAt := indexOfType(evs, events.TypeFinalAnswer)
	require.GreaterOrEqual(t, finalAt, 0)
	assert.Equal(t, "Build it lean.", evs[finalAt].Content)

	last := evs[len(evs)-1]
	require.Equal(t, events.TypeError, last.Type)
	assert.Equal(t, string(KindStorage), last.Kind)
	assert.Equal(t, -1, indexOfType(evs, events.TypeComplete))
}

func TestMemoryOperations(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	o := New(happyAnalyzer(), store, testConfig())
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, query := range []string{"first question", "second question", "third question"} {
		require.NoError(t, store.Append(ctx, &models.ConversationEntry{
			EntryID:       query,
			ThreadID:      "thread-mem",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			UserQuery:     query,
			QueryKind:     models.QueryKindGeneral,
			FinalAnswer:   "answer to " + query,
			RouteDecision: models.RouteFullPipeline,
		}))
	}

	entries, stats, err := o.History(ctx, "thread-mem", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "third question", entries[0].UserQuery)
	assert.Equal(t, 3, stats.EntryCount)
	assert.Equal(t, entries[0].Timestamp, stats.LastUpdated)

	results, err := o.Search(ctx, "thread-mem", "SECOND", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second question", results[0].UserQuery)

	has, count, err := o.HasContext(ctx, "thread-mem")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 3, count)

	has, count, err = o.HasContext(ctx, "unknown-thread")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Zero(t, count)

	memStats, err := o.MemoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, memStats.TotalEntries)
	assert.Equal(t, 1, memStats.ThreadCount)

	deleted, err := o.Clear(ctx, "thread-mem")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	entries, stats, err = o.History(ctx, "thread-mem", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, stats.EntryCount)
}

func TestMemoryOperationValidation(t *testing.T) {
	o := New(happyAnalyzer(), memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5}), testConfig())
	ctx := context.Background()

	_, _, err := o.History(ctx, "  ", 10)
	assert.True(t, agent.IsValidationError(err))

	_, err = o.Search(ctx, "", "query", 10)
	assert.True(t, agent.IsValidationError(err))

	_, err = o.Search(ctx, "thread", "  ", 10)
	assert.True(t, agent.IsValidationError(err))

	_, err = o.Clear(ctx, "")
	assert.True(t, agent.IsValidationError(err))

	_, _, err = o.HasContext(ctx, "")
	assert.True(t, agent.IsValidationError(err))
}

func TestShutdownCancelsActiveRuns(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	analyzer := &routedAnalyzer{fn: func(ctx context.Context, _ agent.AnalysisRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	o := New(analyzer, store, testConfig())

	ch, err := o.Run(context.Background(), models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	// Wait until the run is demonstrably under way.
	select {
	case ev := <-ch:
		require.Equal(t, events.TypeClassification, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("run never emitted classification")
	}
	require.Equal(t, 1, o.ActiveRuns())

	done := make(chan []events.Event, 1)
	go func() { done <- collectEvents(t, ch) }()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(shutdownCtx))

	evs := <-done
	require.NotEmpty(t, evs)
	assert.Equal(t, events.TypeCancelled, evs[len(evs)-1].Type)
	assert.Zero(t, o.ActiveRuns())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Kind("")},
		{"validation", agent.NewValidationError("query", "empty"), KindInvalidInput},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"cancelled", context.Canceled, KindCancelled},
		{"storage", errors.Join(ErrStorage, errors.New("disk full")), KindStorage},
		{"upstream", errors.Join(agent.ErrUpstreamUnavailable, errors.New("down")), KindUpstreamUnavailable},
		{"unknown", errors.New("surprise"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

// Cancelling the request context before the run starts must still end
// the stream with a cancelled terminal rather than hanging it.
func TestRunImmediateCancellation(t *testing.T) {
	store := memory.NewInMemoryStore(memory.Options{DuplicateWindow: 5})
	o := New(happyAnalyzer(), store, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := o.Run(ctx, models.RefineRequest{Query: "Build a food delivery app"})
	require.NoError(t, err)

	evs := collectEvents(t, ch)
	if assert.NotEmpty(t, evs) {
		assert.Equal(t, events.TypeCancelled, evs[len(evs)-1].Type)
	}
}
