package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refinehq/refinery/pkg/agent"
	"github.com/refinehq/refinery/pkg/events"
	"github.com/refinehq/refinery/pkg/memory"
	"github.com/refinehq/refinery/pkg/models"
)

// specialistDrainTimeout caps how long an ending run waits for its
// abandoned specialist goroutines to observe cancellation.
const specialistDrainTimeout = 2 * time.Second

// Config tunes per-run behavior. All values come from validated service
// configuration.
type Config struct {
	// HistoryContextLimit caps how many prior entries feed follow-up
	// detection and prompt context.
	HistoryContextLimit int
	// RequestTimeout bounds one whole run. Zero disables the deadline.
	RequestTimeout time.Duration
	// EventBufferSize bounds the per-run event stream. Values below 1
	// fall back to the stream default.
	EventBufferSize int
}

// Orchestrator drives refinement runs and serves thread memory
// inspection. One instance is shared by all requests; each run gets its
// own goroutine, context, and event stream.
type Orchestrator struct {
	analyzer agent.Analyzer
	store    memory.Store
	cfg      Config

	registry *runRegistry
	wg       sync.WaitGroup
}

// New creates an orchestrator on top of an analyzer and a memory store.
func New(analyzer agent.Analyzer, store memory.Store, cfg Config) *Orchestrator {
	return &Orchestrator{
		analyzer: analyzer,
		store:    store,
		cfg:      cfg,
		registry: newRunRegistry(),
	}
}

// Run validates the request and starts one refinement run. The returned
// channel carries the run's events and is closed after a terminal event
// (complete, cancelled, or error). Validation failures are returned
// synchronously; every later failure travels on the stream. Cancelling
// ctx cancels the run.
func (o *Orchestrator) Run(ctx context.Context, req models.RefineRequest) (<-chan events.Event, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, agent.NewValidationError("query", "must not be empty")
	}
	switch models.QueryKind(req.FocusHint) {
	case "", models.QueryKindGeneral, models.QueryKindDomain, models.QueryKindUXUI, models.QueryKindTechnical, models.QueryKindRevenue:
	default:
		return nil, agent.NewValidationError("focus_hint",
			"must be one of general, domain, ux_ui, technical, revenue")
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	runID := uuid.NewString()

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.cfg.RequestTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	stream := events.NewStream(o.cfg.EventBufferSize)
	o.registry.register(runID, cancel)
	o.wg.Add(1)
	go o.run(runCtx, cancel, stream, req, threadID, runID)

	return stream.Events(), nil
}

// run executes one refinement request end to end. Non-terminal events
// are emitted under the run budget; the terminal event is delivered
// without blocking so an absent reader can never hang the run.
func (o *Orchestrator) run(
	runCtx context.Context,
	cancel context.CancelFunc,
	stream *events.Stream,
	req models.RefineRequest,
	threadID, runID string,
) {
	defer o.wg.Done()
	defer stream.Close()
	defer o.registry.unregister(runID)
	defer cancel()

	start := time.Now()
	st := newRunState(runID)
	logger := slog.With("run_id", runID, "thread_id", threadID)

	logger.InfoContext(runCtx, "Refinement run started",
		"query_len", len(req.Query), "focus_hint", req.FocusHint)

	emit := func(ev events.Event) bool { return stream.Emit(runCtx, ev) }

	history, err := o.store.List(runCtx, threadID, o.cfg.HistoryContextLimit)
	if err != nil {
		o.abort(stream, st, logger, fmt.Errorf("%w: listing thread history: %v", ErrStorage, err))
		return
	}

	classification, err := agent.Classify(req.Query, len(history), req.FocusHint)
	if err != nil {
		o.abort(stream, st, logger, err)
		return
	}
	if err := st.advance(StateClassified); err != nil {
		o.abort(stream, st, logger, err)
		return
	}
	if !emit(events.Classification(classification)) {
		o.abort(stream, st, logger, runCtx.Err())
		return
	}

	plan := agent.BuildPlan(classification)
	route := agent.PlanRoute(plan)
	rendered := agent.RenderHistory(history, o.cfg.HistoryContextLimit)

	var (
		outputs         map[models.Role]string
		moderatorOutput string
		finalAnswer     string
	)

	if plan.Shortcut() {
		target := plan.Specialists[0]
		if err := st.advance(StateShortcutRunning); err != nil {
			o.abort(stream, st, logger, err)
			return
		}
		if !emit(events.SpecialistStart(target)) {
			o.abort(stream, st, logger, runCtx.Err())
			return
		}

		var text string
		if target == models.RoleModerator {
			text, err = agent.RunModeratorShortcut(runCtx, o.analyzer, req.Query, rendered)
		} else {
			text, err = agent.RunSpecialist(runCtx, o.analyzer, target, req.Query, rendered)
		}
		if err != nil {
			o.abort(stream, st, logger, err)
			return
		}
		if !emit(events.SpecialistResult(target, text)) {
			o.abort(stream, st, logger, runCtx.Err())
			return
		}

		outputs = map[models.Role]string{target: text}
		// The single agent's text is the answer, unchanged.
		finalAnswer = text
	} else {
		if err := st.advance(StateFanoutRunning); err != nil {
			o.abort(stream, st, logger, err)
			return
		}
		if !emit(events.SupervisorPlan(plan)) {
			o.abort(stream, st, logger, runCtx.Err())
			return
		}

		runner := newSpecialistRunner(runCtx, o.analyzer, len(plan.Specialists))
		defer func() {
			runner.CancelAll()
			drainCtx, drainCancel := context.WithTimeout(context.Background(), specialistDrainTimeout)
			defer drainCancel()
			runner.WaitAll(drainCtx)
		}()

		for _, role := range plan.Specialists {
			runner.Dispatch(role, req.Query, rendered)
			if !emit(events.SpecialistStart(role)) {
				o.abort(stream, st, logger, runCtx.Err())
				return
			}
		}

		// Barrier: consume one completion signal per specialist, in
		// completion order. Failed specialists are excluded from
		// aggregation as long as one peer succeeds.
		outputs = make(map[models.Role]string, len(plan.Specialists))
		for range plan.Specialists {
			result, waitErr := runner.WaitForNext(runCtx)
			if waitErr != nil {
				o.abort(stream, st, logger, waitErr)
				return
			}
			if result.Err != nil {
				// The run's own context ending surfaces as specialist
				// errors too; report it as the run-level terminal it is.
				if runCtx.Err() != nil {
					o.abort(stream, st, logger, runCtx.Err())
					return
				}
				logger.WarnContext(runCtx, "Specialist failed, excluding from aggregation",
					"role", result.Role, "error", result.Err)
				continue
			}
			outputs[result.Role] = result.Text
			if !emit(events.SpecialistResult(result.Role, result.Text)) {
				o.abort(stream, st, logger, runCtx.Err())
				return
			}
		}
		if err := st.advance(StateFanoutComplete); err != nil {
			o.abort(stream, st, logger, err)
			return
		}

		if len(outputs) == 0 {
			o.abort(stream, st, logger, fmt.Errorf("%w: all specialists failed", agent.ErrUpstreamUnavailable))
			return
		}

		if err := st.advance(StateModerating); err != nil {
			o.abort(stream, st, logger, err)
			return
		}
		if !emit(events.ModeratorStart()) {
			o.abort(stream, st, logger, runCtx.Err())
			return
		}

		moderatorOutput, err = agent.RunModerator(runCtx, o.analyzer, req.Query, outputs)
		if err != nil {
			if runCtx.Err() != nil {
				o.abort(stream, st, logger, runCtx.Err())
				return
			}
			// Recovered: the first successful specialist's text, in
			// dispatch order, stands in for the consolidation.
			moderatorOutput = firstOutput(plan.Specialists, outputs)
			logger.WarnContext(runCtx, "Moderator failed, falling back to first specialist output",
				"error", err)
		}
		if !emit(events.ModeratorResult(moderatorOutput)) {
			o.abort(stream, st, logger, runCtx.Err())
			return
		}

		finalAnswer = agent.ExtractFinalAnswer(moderatorOutput)
	}

	if err := st.advance(StateFinalizing); err != nil {
		o.abort(stream, st, logger, err)
		return
	}
	if !emit(events.FinalAnswer(finalAnswer)) {
		o.abort(stream, st, logger, runCtx.Err())
		return
	}

	entry := &models.ConversationEntry{
		EntryID:           runID,
		ThreadID:          threadID,
		Timestamp:         time.Now().UTC(),
		UserQuery:         req.Query,
		QueryKind:         classification.QueryKind,
		IsFollowup:        classification.IsFollowup,
		SpecialistOutputs: outputs,
		ModeratorOutput:   moderatorOutput,
		FinalAnswer:       finalAnswer,
		RouteDecision:     route,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
	}

	// Cancellation suppresses the commit.
	if runCtx.Err() != nil {
		o.abort(stream, st, logger, runCtx.Err())
		return
	}
	if err := o.store.Append(runCtx, entry); err != nil {
		o.abort(stream, st, logger, fmt.Errorf("%w: appending entry: %v", ErrStorage, err))
		return
	}

	if err := st.advance(StateDone); err != nil {
		o.abort(stream, st, logger, err)
		return
	}
	stream.TryEmit(events.Complete(entry))

	logger.Info("Refinement run completed",
		"route", route,
		"duplicate", entry.Duplicate,
		"specialists", len(outputs),
		"duration_ms", entry.ProcessingTimeMS)
}

// abort ends a run on its terminal failure path: cancellation gets the
// cancelled event, everything else gets error{kind, message}. Internal
// faults keep their details in the logs only.
func (o *Orchestrator) abort(stream *events.Stream, st *runState, logger *slog.Logger, err error) {
	kind := KindOf(err)
	switch kind {
	case KindCancelled:
		_ = st.advance(StateCancelled)
		logger.Info("Refinement run cancelled")
		stream.TryEmit(events.Cancelled())
	case KindInternal:
		_ = st.advance(StateFailed)
		logger.Error("Refinement run failed", "kind", kind, "error", err)
		stream.TryEmit(events.Error(string(kind), "internal error"))
	default:
		_ = st.advance(StateFailed)
		logger.Error("Refinement run failed", "kind", kind, "error", err)
		stream.TryEmit(events.Error(string(kind), errorMessage(kind, err)))
	}
}

// errorMessage renders the client-visible message for a failure kind.
func errorMessage(kind Kind, err error) string {
	if kind == KindTimeout {
		return "request deadline exceeded"
	}
	return err.Error()
}

// firstOutput returns the first successful output in dispatch order.
func firstOutput(roles []models.Role, outputs map[models.Role]string) string {
	for _, role := range roles {
		if text, ok := outputs[role]; ok {
			return text
		}
	}
	return ""
}

// History returns up to limit entries of a thread, newest first, along
// with stats computed over the whole thread.
func (o *Orchestrator) History(ctx context.Context, threadID string, limit int) ([]*models.ConversationEntry, models.ThreadStats, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, models.ThreadStats{}, agent.NewValidationError("thread_id", "must not be empty")
	}

	all, err := o.store.List(ctx, threadID, 0)
	if err != nil {
		return nil, models.ThreadStats{}, fmt.Errorf("%w: listing thread: %v", ErrStorage, err)
	}

	stats := models.ThreadStats{EntryCount: len(all)}
	if len(all) > 0 {
		stats.LastUpdated = all[0].Timestamp
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, stats, nil
}

// Search finds thread entries whose query or answer contains the text,
// case-insensitively, most recent first.
func (o *Orchestrator) Search(ctx context.Context, threadID, query string, limit int) ([]*models.ConversationEntry, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, agent.NewValidationError("thread_id", "must not be empty")
	}
	if strings.TrimSpace(query) == "" {
		return nil, agent.NewValidationError("q", "must not be empty")
	}

	results, err := o.store.Search(ctx, threadID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: searching thread: %v", ErrStorage, err)
	}
	return results, nil
}

// Clear deletes a whole thread and returns how many entries it held.
func (o *Orchestrator) Clear(ctx context.Context, threadID string) (int, error) {
	if strings.TrimSpace(threadID) == "" {
		return 0, agent.NewValidationError("thread_id", "must not be empty")
	}

	count, err := o.store.DeleteThread(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting thread: %v", ErrStorage, err)
	}
	return count, nil
}

// MemoryStats reports store-wide totals.
func (o *Orchestrator) MemoryStats(ctx context.Context) (models.MemoryStats, error) {
	stats, err := o.store.Stats(ctx)
	if err != nil {
		return models.MemoryStats{}, fmt.Errorf("%w: reading stats: %v", ErrStorage, err)
	}
	return *stats, nil
}

// HasContext reports whether a thread already carries conversation
// state, and how many entries it holds.
func (o *Orchestrator) HasContext(ctx context.Context, threadID string) (bool, int, error) {
	if strings.TrimSpace(threadID) == "" {
		return false, 0, agent.NewValidationError("thread_id", "must not be empty")
	}

	entries, err := o.store.List(ctx, threadID, 0)
	if err != nil {
		return false, 0, fmt.Errorf("%w: listing thread: %v", ErrStorage, err)
	}
	return len(entries) > 0, len(entries), nil
}

// ActiveRuns returns the number of runs currently in flight.
func (o *Orchestrator) ActiveRuns() int {
	return o.registry.active()
}

// Shutdown cancels all active runs and waits for them to finish, or for
// ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.registry.cancelAll()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
