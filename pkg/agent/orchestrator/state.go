package orchestrator

import (
	"fmt"
	"log/slog"
)

// State names a phase of one refinement run.
type State string

const (
	StateInit            State = "INIT"
	StateClassified      State = "CLASSIFIED"
	StateShortcutRunning State = "SHORTCUT_RUNNING"
	StateFanoutRunning   State = "FANOUT_RUNNING"
	StateFanoutComplete  State = "FANOUT_COMPLETE"
	StateModerating      State = "MODERATING"
	StateFinalizing      State = "FINALIZING"
	StateDone            State = "DONE"
	StateCancelled       State = "CANCELLED"
	StateFailed          State = "FAILED"
)

// Terminal reports whether no further transition may leave s.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateCancelled, StateFailed:
		return true
	}
	return false
}

// legalNext lists the forward edges of the run state machine.
// Transitions are one-way; no state is ever re-entered. Every
// non-terminal state may abort into CANCELLED or FAILED.
var legalNext = map[State][]State{
	StateInit:            {StateClassified},
	StateClassified:      {StateShortcutRunning, StateFanoutRunning},
	StateShortcutRunning: {StateFinalizing},
	StateFanoutRunning:   {StateFanoutComplete},
	StateFanoutComplete:  {StateModerating},
	StateModerating:      {StateFinalizing},
	StateFinalizing:      {StateDone},
}

// runState tracks the phase of a single run. Runs are driven by one
// goroutine, so no locking is needed; the tracker exists to enforce the
// one-way machine and to label log lines.
type runState struct {
	runID   string
	current State
}

func newRunState(runID string) *runState {
	return &runState{runID: runID, current: StateInit}
}

// advance moves to next, which must be a legal forward edge or one of
// the abort states. An illegal transition is a bug in the run loop.
func (s *runState) advance(next State) error {
	if !s.legal(next) {
		return fmt.Errorf("illegal run state transition %s -> %s", s.current, next)
	}
	slog.Debug("Run state transition", "run_id", s.runID, "from", s.current, "to", next)
	s.current = next
	return nil
}

func (s *runState) legal(next State) bool {
	if s.current.Terminal() {
		return false
	}
	if next == StateCancelled || next == StateFailed {
		return true
	}
	for _, candidate := range legalNext[s.current] {
		if candidate == next {
			return true
		}
	}
	return false
}
