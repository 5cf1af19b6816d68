package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/refinehq/refinery/pkg/agent"
	"github.com/refinehq/refinery/pkg/models"
)

// AnalysisScriptEntry defines a single scripted analyzer response.
type AnalysisScriptEntry struct {
	// Response content (exactly one must be set)
	Text string // Text to return from Analyze()
	Err  error  // Error to return from Analyze()

	// Test control
	BlockUntilCancelled bool            // Block Analyze() until ctx is done, then return ctx.Err()
	WaitCh              <-chan struct{} // Block Analyze() until closed, then return normal response
	OnBlock             chan<- struct{} // Notified when Analyze() enters its blocking path (BlockUntilCancelled or WaitCh)
}

// ScriptedAnalyzer implements agent.Analyzer with a dual-dispatch mock:
// sequential fallback for single-agent calls, plus role-aware routing
// for the fan-out stage where call order is non-deterministic.
type ScriptedAnalyzer struct {
	mu         sync.Mutex
	sequential []AnalysisScriptEntry // consumed in order for non-routed calls
	seqIndex   int
	routes     map[models.Role][]AnalysisScriptEntry // role → per-role script
	routeIndex map[models.Role]int                   // role → current index
	captured   []agent.AnalysisRequest
}

// NewScriptedAnalyzer creates a new ScriptedAnalyzer.
func NewScriptedAnalyzer() *ScriptedAnalyzer {
	return &ScriptedAnalyzer{
		routes:     make(map[models.Role][]AnalysisScriptEntry),
		routeIndex: make(map[models.Role]int),
	}
}

// AddSequential adds an entry consumed in order for calls whose role has
// no routed script.
func (a *ScriptedAnalyzer) AddSequential(entry AnalysisScriptEntry) {
	a.sequential = append(a.sequential, entry)
}

// AddRouted adds an entry for a specific role. Used for the parallel
// fan-out where specialists need differentiated responses.
func (a *ScriptedAnalyzer) AddRouted(role models.Role, entry AnalysisScriptEntry) {
	a.routes[role] = append(a.routes[role], entry)
}

// Analyze implements agent.Analyzer.
func (a *ScriptedAnalyzer) Analyze(ctx context.Context, req agent.AnalysisRequest) (string, error) {
	a.mu.Lock()
	a.captured = append(a.captured, req)
	entry, err := a.nextEntry(req.Role)
	a.mu.Unlock()

	if err != nil {
		return "", err
	}

	// Handle BlockUntilCancelled: wait for context cancellation.
	if entry.BlockUntilCancelled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return "", ctx.Err()
	}

	// Handle WaitCh: block until released, then continue with the
	// normal response.
	if entry.WaitCh != nil {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		select {
		case <-entry.WaitCh:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if entry.Err != nil {
		return "", entry.Err
	}
	return entry.Text, nil
}

// CallCount returns the total number of Analyze() calls made.
func (a *ScriptedAnalyzer) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.captured)
}

// CallsFor returns how many Analyze() calls were made for a role.
func (a *ScriptedAnalyzer) CallsFor(role models.Role) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, req := range a.captured {
		if req.Role == role {
			n++
		}
	}
	return n
}

// CapturedRequests returns a copy of every recorded request, in call
// order.
func (a *ScriptedAnalyzer) CapturedRequests() []agent.AnalysisRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]agent.AnalysisRequest, len(a.captured))
	copy(out, a.captured)
	return out
}

// nextEntry selects the next script entry using dual dispatch.
// Must be called with a.mu held.
func (a *ScriptedAnalyzer) nextEntry(role models.Role) (*AnalysisScriptEntry, error) {
	// Try routed dispatch first.
	if entries, ok := a.routes[role]; ok {
		idx := a.routeIndex[role]
		if idx < len(entries) {
			a.routeIndex[role] = idx + 1
			return &entries[idx], nil
		}
	}

	// Fall back to sequential dispatch.
	if a.seqIndex < len(a.sequential) {
		entry := &a.sequential[a.seqIndex]
		a.seqIndex++
		return entry, nil
	}

	return nil, fmt.Errorf("ScriptedAnalyzer: no more entries (role=%q, sequential=%d/%d)",
		role, a.seqIndex, len(a.sequential))
}
