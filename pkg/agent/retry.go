package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/openai/openai-go"
)

// RetryConfig tunes the retrying analyzer wrapper.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, not extra retries.
	MaxAttempts int
	// BaseDelay is the first backoff interval; it doubles per attempt.
	BaseDelay time.Duration
	// CallTimeout is the per-attempt deadline. Zero disables it.
	CallTimeout time.Duration
}

// jitterFraction spreads backoff delays ±20% so concurrent specialists
// retrying the same backend do not align.
const jitterFraction = 0.2

// retryingAnalyzer decorates an Analyzer with bounded retries and
// exponential backoff.
type retryingAnalyzer struct {
	inner Analyzer
	cfg   RetryConfig
}

// WithRetry wraps an analyzer with retry behavior. MaxAttempts below 1
// is treated as a single attempt.
func WithRetry(inner Analyzer, cfg RetryConfig) Analyzer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &retryingAnalyzer{inner: inner, cfg: cfg}
}

// Analyze implements Analyzer.
func (r *retryingAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		text, err := r.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		// The request-level context ending is final, whether it expired
		// on its own or the attempt consumed the remaining budget.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		// A per-attempt deadline is transient as long as the request
		// still has budget; everything else is classified by kind.
		if !errors.Is(err, context.DeadlineExceeded) && !IsRetryable(ctx, err) {
			return "", err
		}

		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(r.cfg.BaseDelay, attempt)
		slog.DebugContext(ctx, "retrying analysis call",
			"role", req.Role,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%w: %d attempts failed: %v", ErrUpstreamUnavailable, r.cfg.MaxAttempts, lastErr)
}

// attempt runs one analysis call under the per-call deadline.
func (r *retryingAnalyzer) attempt(ctx context.Context, req AnalysisRequest) (string, error) {
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}
	return r.inner.Analyze(ctx, req)
}

// backoffDelay is base doubled per attempt with ±20% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	jitter := 1 + jitterFraction*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

// IsRetryable reports whether an analysis error is worth another
// attempt. Context cancellation is final, client-side API errors are
// final; rate limits, server errors, and network failures are transient.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			slog.WarnContext(ctx, "analysis backend rate limited, will retry",
				"status_code", apiErr.StatusCode)
			return true
		case apiErr.StatusCode >= 500:
			slog.WarnContext(ctx, "analysis backend server error, will retry",
				"status_code", apiErr.StatusCode)
			return true
		default:
			slog.ErrorContext(ctx, "analysis backend client error, not retryable",
				"status_code", apiErr.StatusCode,
				"error_type", apiErr.Type,
				"error_code", apiErr.Code)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	return true
}
