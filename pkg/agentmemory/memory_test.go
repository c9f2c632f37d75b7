package agentmemory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contractforge/forge/internal/workflowcontext"
)

func snapshotWithPrompt(id, prompt string, status workflowcontext.Status) workflowcontext.Snapshot {
	c := workflowcontext.New(id, prompt)
	c.SetStatus(status, false)
	return c.Snapshot()
}

func TestAddAndStatisticsComputeSuccessRate(t *testing.T) {
	m, err := New(filepath.Join(t.TempDir(), "agent_memory.json"), 10)
	require.NoError(t, err)

	require.NoError(t, m.Add(snapshotWithPrompt("wf-1", "an ERC20 token", workflowcontext.StatusSuccess)))
	require.NoError(t, m.Add(snapshotWithPrompt("wf-2", "an ERC721 nft", workflowcontext.StatusError)))

	stats := m.Statistics()
	require.Equal(t, 2, stats.TotalEntries)
	require.InDelta(t, 0.5, stats.SuccessRate, 0.001)
}

func TestBoundedRetentionDropsOldestEntry(t *testing.T) {
	m, err := New(filepath.Join(t.TempDir(), "agent_memory.json"), 2)
	require.NoError(t, err)

	require.NoError(t, m.Add(snapshotWithPrompt("wf-1", "first", workflowcontext.StatusSuccess)))
	require.NoError(t, m.Add(snapshotWithPrompt("wf-2", "second", workflowcontext.StatusSuccess)))
	require.NoError(t, m.Add(snapshotWithPrompt("wf-3", "third", workflowcontext.StatusSuccess)))

	require.Len(t, m.entries, 2)
	require.Equal(t, "wf-2", m.entries[0].WorkflowID)
	require.Equal(t, "wf-3", m.entries[1].WorkflowID)
}

func TestQuerySimilarErrorsRequiresSuccessfulFix(t *testing.T) {
	m, err := New(filepath.Join(t.TempDir(), "agent_memory.json"), 10)
	require.NoError(t, err)

	c := workflowcontext.New("wf-1", "token")
	c.AppendError(workflowcontext.ErrorRecord{Stage: workflowcontext.StageGeneration, ErrorType: workflowcontext.ErrorTypeMissingPragma})
	c.MarkFixSuccessful(workflowcontext.StageGeneration, "added pragma")
	require.NoError(t, m.Add(c.Snapshot()))

	c2 := workflowcontext.New("wf-2", "token")
	c2.AppendError(workflowcontext.ErrorRecord{Stage: workflowcontext.StageGeneration, ErrorType: workflowcontext.ErrorTypeMissingPragma})
	require.NoError(t, m.Add(c2.Snapshot()))

	matches := m.QuerySimilarErrors(workflowcontext.ErrorTypeMissingPragma, workflowcontext.StageGeneration, 10)
	require.Len(t, matches, 1)
	require.Equal(t, "wf-1", matches[0].WorkflowID)
}

func TestQuerySimilarPromptsUsesJaccardThreshold(t *testing.T) {
	m, err := New(filepath.Join(t.TempDir(), "agent_memory.json"), 10)
	require.NoError(t, err)

	require.NoError(t, m.Add(snapshotWithPrompt("wf-1", "create an ERC20 token named Acme with a fixed supply", workflowcontext.StatusSuccess)))
	require.NoError(t, m.Add(snapshotWithPrompt("wf-2", "deploy a completely unrelated DAO governance contract", workflowcontext.StatusSuccess)))

	matches := m.QuerySimilarPrompts("create an ERC20 token named Acme with mintable supply", 10)
	require.Len(t, matches, 1)
	require.Equal(t, "wf-1", matches[0].WorkflowID)
}

func TestGetSuccessfulFixesForErrorReturnsMostRecentFirst(t *testing.T) {
	m, err := New(filepath.Join(t.TempDir(), "agent_memory.json"), 10)
	require.NoError(t, err)

	c1 := workflowcontext.New("wf-1", "token")
	c1.AppendError(workflowcontext.ErrorRecord{Stage: workflowcontext.StageCompilation, ErrorType: workflowcontext.ErrorTypeCompilationError})
	c1.MarkFixSuccessful(workflowcontext.StageCompilation, "pinned solidity version")
	require.NoError(t, m.Add(c1.Snapshot()))

	c2 := workflowcontext.New("wf-2", "token")
	c2.AppendError(workflowcontext.ErrorRecord{Stage: workflowcontext.StageCompilation, ErrorType: workflowcontext.ErrorTypeCompilationError})
	c2.MarkFixSuccessful(workflowcontext.StageCompilation, "added missing import")
	require.NoError(t, m.Add(c2.Snapshot()))

	fixes := m.GetSuccessfulFixesForError(workflowcontext.ErrorTypeCompilationError, workflowcontext.StageCompilation)
	require.Equal(t, []string{"added missing import", "pinned solidity version"}, fixes)
}

func TestMemoryPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_memory.json")
	m1, err := New(path, 10)
	require.NoError(t, err)
	require.NoError(t, m1.Add(snapshotWithPrompt("wf-1", "token", workflowcontext.StatusSuccess)))

	m2, err := New(path, 10)
	require.NoError(t, err)
	require.Len(t, m2.entries, 1)
}

func TestDistillCapturesContractCategory(t *testing.T) {
	c := workflowcontext.New("wf-1", "an ERC20 token")
	c.SetContractInfo(&workflowcontext.ContractInfo{Name: "Acme", Category: workflowcontext.ContractERC20})
	entry := distill(c.Snapshot())
	require.Equal(t, workflowcontext.ContractERC20, entry.ContractType)
}
