package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUpToCapacity(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	require.True(t, limiter.Allow())
	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())
}

func TestRateLimiterRefillsAfterWindow(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	fakeNow := time.Now()
	limiter.now = func() time.Time { return fakeNow }

	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	fakeNow = fakeNow.Add(2 * time.Minute)
	require.True(t, limiter.Allow())
}

func TestRateLimiterDefaultsWhenZeroValues(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	require.Equal(t, DefaultRateLimitTokens, limiter.capacity)
	require.Equal(t, DefaultRateLimitWindow, limiter.window)
}
