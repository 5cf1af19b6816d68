package orchestrator

import (
	"context"
	"sync"
)

// runRegistry maps active run IDs to their cancel functions so runs can
// be cancelled individually or all at once during shutdown.
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]context.CancelFunc
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]context.CancelFunc)}
}

// register stores a cancel function for the run.
func (r *runRegistry) register(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = cancel
}

// unregister removes the run when it ends.
func (r *runRegistry) unregister(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// cancelAll cancels every active run.
func (r *runRegistry) cancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cancel := range r.runs {
		cancel()
	}
}

// active returns the number of runs currently registered.
func (r *runRegistry) active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
