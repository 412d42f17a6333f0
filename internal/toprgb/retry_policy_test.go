package toprgb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(2, time.Millisecond, 10*time.Millisecond)
	transient := errors.New("connection reset")

	require.Equal(t, 3, p.MaxAttempts())
	require.False(t, p.ShouldRetry(nil, 1))
	require.True(t, p.ShouldRetry(transient, 1))
	require.True(t, p.ShouldRetry(transient, 2))
	require.False(t, p.ShouldRetry(transient, 3), "budget exhausted after two retries")
	require.False(t, p.ShouldRetry(fmt.Errorf("get: %w", ErrHTTPStatus), 1))
	require.False(t, p.ShouldRetry(ErrUnsupportedScheme, 1))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
}

func TestExponentialRetryPolicyNegativeRetries(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(-4, 0, 0)
	require.Equal(t, 1, p.MaxAttempts())
	require.False(t, p.ShouldRetry(errors.New("boom"), 1))
	require.Zero(t, p.Backoff(1))
}

func TestExponentialRetryPolicyBackoffBounded(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 400*time.Millisecond)
	}
	require.GreaterOrEqual(t, p.Backoff(1), 50*time.Millisecond)
}
