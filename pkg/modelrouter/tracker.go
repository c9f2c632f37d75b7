package modelrouter

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/contractforge/forge/internal/atomicfile"
)

// responseTimeEMAAlpha is the smoothing factor for the response-time
// exponential moving average.
const responseTimeEMAAlpha = 0.1

// PerformanceRecord tracks a single model's rolling call history.
type PerformanceRecord struct {
	Model               string    `json:"model"`
	TotalCalls          int       `json:"total_calls"`
	SuccessfulCalls     int       `json:"successful_calls"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalTokensUsed     int64     `json:"total_tokens_used"`
	AvgResponseTimeMs   float64   `json:"avg_response_time_ms"`
	LastUsed            time.Time `json:"last_used"`
}

func (r PerformanceRecord) successRate() float64 {
	if r.TotalCalls == 0 {
		return 1.0 // no evidence against it yet; treat as neutral-favorable
	}
	return float64(r.SuccessfulCalls) / float64(r.TotalCalls)
}

// recencyScore is min(1.0, hours_since_last_use / 24.0). A model that
// has never been used scores 1.0, same as one unused for a day or more.
func (r PerformanceRecord) recencyScore(now time.Time) float64 {
	if r.LastUsed.IsZero() {
		return 1.0
	}
	hoursSince := now.Sub(r.LastUsed).Hours()
	if hoursSince < 0 {
		hoursSince = 0
	}
	return math.Min(1.0, hoursSince/24.0)
}

// score implements the weighted rotation formula:
//
//	0.5*success_rate + 0.3*(1/(1+0.5*consecutive_failures)) + 0.2*recency_score
func (r PerformanceRecord) score(now time.Time) float64 {
	failurePenalty := 1.0 / (1.0 + 0.5*float64(r.ConsecutiveFailures))
	return 0.5*r.successRate() + 0.3*failurePenalty + 0.2*r.recencyScore(now)
}

// maxConsecutiveFailures is the rotation-exclusion threshold: a model
// that has failed this many times in a row is skipped until it
// succeeds again.
const maxConsecutiveFailures = 3

// Tracker records per-model outcomes and feeds rotation decisions back
// into Router. It persists to a single JSON file with an atomic
// write-then-rename, mirroring the rest of the framework's on-disk
// stores.
type Tracker struct {
	mu      sync.RWMutex
	path    string
	records map[string]*PerformanceRecord
	now     func() time.Time
}

// NewTracker creates a Tracker backed by path. If path already holds a
// persisted state it is loaded; a missing file is treated as an empty
// tracker rather than an error.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{
		path:    path,
		records: make(map[string]*PerformanceRecord),
		now:     time.Now,
	}
	data, err := atomicfile.ReadFile(path)
	if err != nil {
		return t, nil
	}
	var stored map[string]*PerformanceRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("modelrouter: decode tracker state %s: %w", path, err)
	}
	t.records = stored
	return t, nil
}

// RecordSuccess registers a successful call against model, updating its
// token usage and response-time EMA. Idempotent to call concurrently;
// each call simply folds in one more observation.
func (t *Tracker) RecordSuccess(model string, tokensUsed int, responseTimeMs float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordLocked(model)
	r.TotalCalls++
	r.SuccessfulCalls++
	r.ConsecutiveFailures = 0
	r.TotalTokensUsed += int64(tokensUsed)
	r.AvgResponseTimeMs = ema(r.AvgResponseTimeMs, responseTimeMs, r.SuccessfulCalls)
	r.LastUsed = t.now()
	return t.persistLocked()
}

// RecordFailure registers a failed call against model.
func (t *Tracker) RecordFailure(model string, tokensUsed int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordLocked(model)
	r.TotalCalls++
	r.ConsecutiveFailures++
	r.TotalTokensUsed += int64(tokensUsed)
	r.LastUsed = t.now()
	return t.persistLocked()
}

// ema folds sample into running with the tracker's smoothing factor.
// The very first observation seeds the average directly rather than
// blending against a zero baseline.
func ema(running, sample float64, observationCount int) float64 {
	if observationCount <= 1 {
		return sample
	}
	return responseTimeEMAAlpha*sample + (1-responseTimeEMAAlpha)*running
}

func (t *Tracker) recordLocked(model string) *PerformanceRecord {
	r, ok := t.records[model]
	if !ok {
		r = &PerformanceRecord{Model: model}
		t.records[model] = r
	}
	return r
}

func (t *Tracker) persistLocked() error {
	data, err := json.MarshalIndent(t.records, "", "  ")
	if err != nil {
		return fmt.Errorf("modelrouter: marshal tracker state: %w", err)
	}
	if err := atomicfile.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("modelrouter: persist tracker state %s: %w", t.path, err)
	}
	return nil
}

// IsExcluded reports whether model has failed maxConsecutiveFailures
// times in a row and should be skipped by rotation.
func (t *Tracker) IsExcluded(model string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[model]
	if !ok {
		return false
	}
	return r.ConsecutiveFailures >= maxConsecutiveFailures
}

// Rank orders candidates by descending rotation score, excluding any
// model with too many consecutive failures unless doing so would empty
// the set entirely.
func (t *Tracker) Rank(candidates []ModelEntry) []ModelEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	eligible := make([]ModelEntry, 0, len(candidates))
	for _, c := range candidates {
		if r, ok := t.records[c.Name]; ok && r.ConsecutiveFailures >= maxConsecutiveFailures {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		eligible = candidates
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return t.scoreFor(eligible[i].Name, now) > t.scoreFor(eligible[j].Name, now)
	})
	return eligible
}

func (t *Tracker) scoreFor(model string, now time.Time) float64 {
	r, ok := t.records[model]
	if !ok {
		return PerformanceRecord{}.score(now)
	}
	return r.score(now)
}

// Snapshot returns a copy of the current performance records, keyed by
// model name.
func (t *Tracker) Snapshot() map[string]PerformanceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]PerformanceRecord, len(t.records))
	for k, v := range t.records {
		out[k] = *v
	}
	return out
}
