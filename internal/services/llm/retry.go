package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines bounded retry-with-backoff behavior for LLM calls.
// The same policy object is reused by per-file fact extraction and by the
// cross-document synthesis stage.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first
	MaxRetries int

	// InitialBackoff is the wait before the first retry; each subsequent
	// retry doubles it (2s, 4s, ...).
	InitialBackoff time.Duration
}

// NewRetryPolicy returns a policy with the runner's defaults: two
// retries, exponential backoff starting at two seconds.
func NewRetryPolicy(maxRetries int, initialBackoff time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialBackoff <= 0 {
		initialBackoff = 2 * time.Second
	}
	return &RetryPolicy{
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
	}
}

// IsRetryable classifies an error as retryable (rate limiting, transient
// network fault) or fatal (authorization, malformed request, anything
// unrecognized). Context expiry is never retryable: the per-file deadline
// has already decided the outcome.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "429"),
		strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "resource_exhausted"),
		strings.Contains(errStr, "quota"),
		strings.Contains(errStr, "overloaded"),
		strings.Contains(errStr, "529"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "unexpected eof"):
		return true
	}
	return false
}

// Backoff computes the wait before the given retry attempt (0-based)
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
	}
	return backoff
}

// Do runs fn, retrying retryable failures up to MaxRetries times with
// exponential backoff. Fatal errors propagate immediately.
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.Backoff(attempt - 1)
			logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying after transient failure")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
