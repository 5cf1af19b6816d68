package orchestrator

import (
	"context"
	"sync"

	"github.com/refinehq/refinery/pkg/agent"
	"github.com/refinehq/refinery/pkg/models"
)

// specialistResult is one completion signal from the fan-out stage.
type specialistResult struct {
	Role models.Role
	Text string
	Err  error
}

// specialistRunner manages the specialist goroutines of one run. It
// provides push-based result delivery through a buffered channel and
// lifecycle management (cancel, wait). The channel is sized to the
// dispatch count so no goroutine ever blocks on delivery.
type specialistRunner struct {
	mu    sync.Mutex
	tasks map[models.Role]*specialistTask

	resultsCh chan specialistResult

	// Closed by CancelAll to signal goroutines that the run is being
	// abandoned and undelivered results should be dropped.
	closeCh chan struct{}

	// parentCtx is the run-level context specialists derive from, so a
	// single task cancellation never tears down its peers.
	parentCtx context.Context
	analyzer  agent.Analyzer
}

func newSpecialistRunner(parentCtx context.Context, analyzer agent.Analyzer, capacity int) *specialistRunner {
	return &specialistRunner{
		tasks:     make(map[models.Role]*specialistTask),
		resultsCh: make(chan specialistResult, capacity),
		closeCh:   make(chan struct{}),
		parentCtx: parentCtx,
		analyzer:  analyzer,
	}
}

type specialistTask struct {
	role   models.Role
	cancel context.CancelFunc
	done   chan struct{}
}

// Dispatch starts one specialist goroutine and returns immediately. The
// result is delivered to the results channel when the analysis finishes.
func (r *specialistRunner) Dispatch(role models.Role, query, history string) {
	taskCtx, cancel := context.WithCancel(r.parentCtx)
	task := &specialistTask{
		role:   role,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[role] = task
	r.mu.Unlock()

	go r.run(taskCtx, cancel, task, query, history)
}

func (r *specialistRunner) run(ctx context.Context, cancel context.CancelFunc, task *specialistTask, query, history string) {
	defer cancel()
	defer close(task.done)

	text, err := agent.RunSpecialist(ctx, r.analyzer, task.role, query, history)

	// Non-blocking on shutdown: if closeCh is closed the run has been
	// abandoned and nobody will consume the result.
	select {
	case r.resultsCh <- specialistResult{Role: task.role, Text: text, Err: err}:
	case <-r.closeCh:
	}
}

// WaitForNext blocks until a specialist result is available or the
// context is done.
func (r *specialistRunner) WaitForNext(ctx context.Context) (specialistResult, error) {
	select {
	case result := <-r.resultsCh:
		return result, nil
	case <-ctx.Done():
		return specialistResult{}, ctx.Err()
	}
}

// CancelAll cancels all specialist contexts and signals goroutines to
// drop undelivered results.
func (r *specialistRunner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.closeCh:
		// already closed
	default:
		close(r.closeCh)
	}

	for _, task := range r.tasks {
		task.cancel()
	}
}

// WaitAll blocks until every dispatched goroutine has finished or the
// context is done. Runs drain their goroutines on the way out so no
// straggler keeps an analyzer call alive unobserved.
func (r *specialistRunner) WaitAll(ctx context.Context) {
	r.mu.Lock()
	tasks := make([]*specialistTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.mu.Unlock()

	for _, task := range tasks {
		select {
		case <-task.done:
		case <-ctx.Done():
			return
		}
	}
}
