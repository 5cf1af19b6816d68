// Package orchestrator drives the refinement pipeline for one request
// at a time: classify, plan, fan out to specialists, moderate, finalize
// and persist, emitting a bounded event stream along the way.
package orchestrator

import (
	"context"
	"errors"

	"github.com/refinehq/refinery/pkg/agent"
)

// ErrStorage marks a memory store failure inside a run.
var ErrStorage = errors.New("storage failure")

// Kind buckets a run failure for the terminal error event and the
// transport's status mapping.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindTimeout             Kind = "timeout"
	KindStorage             Kind = "storage"
	KindCancelled           Kind = "cancelled"
	KindInternal            Kind = "internal"
)

// KindOf classifies an error. Deadline expiry is checked before
// cancellation because a timed-out context reports both.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, agent.ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, agent.ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	default:
		return KindInternal
	}
}
