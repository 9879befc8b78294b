package embedder

import (
	"context"
	"fmt"
	"time"

	"contextd/src/core/fault"
	"contextd/src/infrastructure/log"
)

// DefaultMaxAttempts bounds how often a transient embedding failure is
// retried before it is surfaced as unavailable.
const DefaultMaxAttempts = 3

// WithRetry wraps e so that transient failures are retried with exponential
// backoff up to maxAttempts total attempts. Validation, authentication and
// configuration failures propagate immediately.
func WithRetry(e Embedder, maxAttempts int, baseDelay time.Duration) Embedder {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &retrying{inner: e, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

type retrying struct {
	inner       Embedder
	maxAttempts int
	baseDelay   time.Duration
}

func (r *retrying) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		vectors, err := r.inner.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !fault.IsTransient(err) {
			return nil, err
		}
		lastErr = err

		if attempt < r.maxAttempts {
			log.Debug("transient embedding failure, retrying",
				"attempt", attempt, "delay", delay.String(), "error", err.Error())
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("%w: embedding failed after %d attempts: %v",
		fault.ErrUnavailable, r.maxAttempts, lastErr)
}

func (r *retrying) Dimension() int {
	return r.inner.Dimension()
}
