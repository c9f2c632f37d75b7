package modelrouter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.json")
	tr, err := NewTracker(path)
	require.NoError(t, err)
	tr.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return tr
}

func TestTrackerRecordSuccessResetsConsecutiveFailures(t *testing.T) {
	tr := newTestTracker(t)

	require.NoError(t, tr.RecordFailure("claude-haiku", 100))
	require.NoError(t, tr.RecordFailure("claude-haiku", 100))
	require.NoError(t, tr.RecordSuccess("claude-haiku", 200, 350))

	snap := tr.Snapshot()
	require.Equal(t, 0, snap["claude-haiku"].ConsecutiveFailures)
	require.Equal(t, 3, snap["claude-haiku"].TotalCalls)
	require.Equal(t, 1, snap["claude-haiku"].SuccessfulCalls)
	require.Equal(t, float64(350), snap["claude-haiku"].AvgResponseTimeMs)
	require.Equal(t, int64(400), snap["claude-haiku"].TotalTokensUsed)
}

func TestTrackerResponseTimeEMASmoothsAcrossSuccesses(t *testing.T) {
	tr := newTestTracker(t)

	require.NoError(t, tr.RecordSuccess("claude-sonnet", 100, 100))
	require.NoError(t, tr.RecordSuccess("claude-sonnet", 100, 300))

	snap := tr.Snapshot()
	require.InDelta(t, 0.1*300+0.9*100, snap["claude-sonnet"].AvgResponseTimeMs, 0.001)
}

func TestTrackerExcludesAfterThreeConsecutiveFailures(t *testing.T) {
	tr := newTestTracker(t)

	require.False(t, tr.IsExcluded("flaky-model"))
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.RecordFailure("flaky-model", 10))
	}
	require.True(t, tr.IsExcluded("flaky-model"))
}

func TestTrackerRankExcludesFailingModels(t *testing.T) {
	tr := newTestTracker(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.RecordFailure("bad-model", 10))
	}
	require.NoError(t, tr.RecordSuccess("good-model", 10, 50))

	ranked := tr.Rank([]ModelEntry{{Name: "bad-model"}, {Name: "good-model"}})
	require.Len(t, ranked, 1)
	require.Equal(t, "good-model", ranked[0].Name)
}

func TestTrackerRankFallsBackWhenAllExcluded(t *testing.T) {
	tr := newTestTracker(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.RecordFailure("only-model", 10))
	}

	ranked := tr.Rank([]ModelEntry{{Name: "only-model"}})
	require.Len(t, ranked, 1)
}

func TestTrackerNeverUsedModelScoresFullRecency(t *testing.T) {
	tr := newTestTracker(t)
	require.Equal(t, 1.0, PerformanceRecord{}.recencyScore(tr.now()))
}

func TestTrackerPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.json")
	tr1, err := NewTracker(path)
	require.NoError(t, err)
	require.NoError(t, tr1.RecordSuccess("claude-sonnet", 10, 50))

	tr2, err := NewTracker(path)
	require.NoError(t, err)
	snap := tr2.Snapshot()
	require.Equal(t, 1, snap["claude-sonnet"].TotalCalls)
}
