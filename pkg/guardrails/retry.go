// Package guardrails enforces per-stage retry limits, writes escalation
// records when a stage exhausts its retries, rate-limits deployment
// attempts, and translates internal errors into user-facing advice.
package guardrails

import "github.com/contractforge/forge/internal/workflowcontext"

// DefaultMaxRetriesPerStage is the default retry ceiling applied to every
// stage unless a workflow's config overrides it.
const DefaultMaxRetriesPerStage = 3

// RetryLimiter tracks the configured ceiling and answers whether a given
// attempt count has exhausted it.
type RetryLimiter struct {
	MaxRetriesPerStage int
}

// NewRetryLimiter builds a RetryLimiter. maxRetries <= 0 falls back to
// DefaultMaxRetriesPerStage.
func NewRetryLimiter(maxRetries int) *RetryLimiter {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetriesPerStage
	}
	return &RetryLimiter{MaxRetriesPerStage: maxRetries}
}

// LimitExceeded reports whether count has reached the configured ceiling
// for stage. The stage argument is accepted (rather than a bare int check)
// so a future per-stage override doesn't change every call site.
func (r *RetryLimiter) LimitExceeded(stage workflowcontext.StageName, count int) bool {
	return count >= r.MaxRetriesPerStage
}
