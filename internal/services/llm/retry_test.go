package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"rate limited", fmt.Errorf("request failed: 429 Too Many Requests"), true},
		{"rate limit text", fmt.Errorf("rate limit exceeded"), true},
		{"gemini quota", fmt.Errorf("RESOURCE_EXHAUSTED: quota exceeded"), true},
		{"anthropic overloaded", fmt.Errorf("overloaded_error: 529"), true},
		{"service unavailable", fmt.Errorf("503 Service Unavailable"), true},
		{"connection reset", fmt.Errorf("read tcp: connection reset by peer"), true},
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), true},
		{"truncated response", fmt.Errorf("unexpected EOF"), true},
		{"auth failure", fmt.Errorf("401 invalid api key"), false},
		{"bad request", fmt.Errorf("400 invalid request"), false},
		{"deadline", context.DeadlineExceeded, false},
		{"cancelled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("chat failed: %w", context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestBackoffDoubles(t *testing.T) {
	policy := NewRetryPolicy(2, 2*time.Second)
	assert.Equal(t, 2*time.Second, policy.Backoff(0))
	assert.Equal(t, 4*time.Second, policy.Backoff(1))
	assert.Equal(t, 8*time.Second, policy.Backoff(2))
}

func TestDoRetriesTransientFailures(t *testing.T) {
	policy := NewRetryPolicy(2, time.Millisecond)
	calls := 0

	err := policy.Do(context.Background(), arbor.NewLogger(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("429 slow down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxRetries(t *testing.T) {
	policy := NewRetryPolicy(2, time.Millisecond)
	calls := 0

	err := policy.Do(context.Background(), arbor.NewLogger(), "test", func(context.Context) error {
		calls++
		return fmt.Errorf("429 slow down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryFatalErrors(t *testing.T) {
	policy := NewRetryPolicy(2, time.Millisecond)
	calls := 0

	err := policy.Do(context.Background(), arbor.NewLogger(), "test", func(context.Context) error {
		calls++
		return fmt.Errorf("401 invalid api key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextDuringBackoff(t *testing.T) {
	policy := NewRetryPolicy(3, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := policy.Do(ctx, arbor.NewLogger(), "test", func(context.Context) error {
		return fmt.Errorf("429 slow down")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
