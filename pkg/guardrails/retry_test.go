package guardrails

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contractforge/forge/internal/workflowcontext"
)

func TestRetryLimiterDefaultsToThree(t *testing.T) {
	limiter := NewRetryLimiter(0)
	require.Equal(t, DefaultMaxRetriesPerStage, limiter.MaxRetriesPerStage)
}

func TestRetryLimiterExceedsAtConfiguredCeiling(t *testing.T) {
	limiter := NewRetryLimiter(3)
	require.False(t, limiter.LimitExceeded(workflowcontext.StageCompilation, 2))
	require.True(t, limiter.LimitExceeded(workflowcontext.StageCompilation, 3))
	require.True(t, limiter.LimitExceeded(workflowcontext.StageCompilation, 4))
}
