package workflowcontext

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewContextDefaults(t *testing.T) {
	c := New("wf-1", "ERC20 token named TestToken")
	require.Equal(t, StatusRunning, c.Status)
	require.False(t, c.CriticalFailure)
	require.Empty(t, c.Stages)
	require.NotNil(t, c.RetryAttempts)
	require.NotNil(t, c.FailedStages)
}

func TestCriticalStages(t *testing.T) {
	require.True(t, StageGeneration.IsCritical())
	require.True(t, StageCompilation.IsCritical())
	require.False(t, StageDeployment.IsCritical())
	require.False(t, StageAudit.IsCritical())
}

func TestIncrementRetryAndFailedStages(t *testing.T) {
	c := New("wf-2", "prompt")
	require.Equal(t, 1, c.IncrementRetry(StageGeneration))
	require.Equal(t, 2, c.IncrementRetry(StageGeneration))
	require.Equal(t, 2, c.RetryCount(StageGeneration))

	c.MarkFailedStage(StageDeployment)
	require.True(t, c.Snapshot().FailedStages[StageDeployment])
	c.ClearFailedStage(StageDeployment)
	require.False(t, c.Snapshot().FailedStages[StageDeployment])
}

func TestMarkFixSuccessfulTargetsMostRecentMatchingStage(t *testing.T) {
	c := New("wf-3", "prompt")
	c.AppendError(ErrorRecord{Stage: StageCompilation, ErrorType: ErrorTypeMissingPragma})
	c.AppendError(ErrorRecord{Stage: StageGeneration, ErrorType: ErrorTypeUnknown})
	c.AppendError(ErrorRecord{Stage: StageCompilation, ErrorType: ErrorTypeCompilationError})

	c.MarkFixSuccessful(StageCompilation, "added pragma")

	snap := c.Snapshot()
	require.False(t, snap.ErrorHistory[0].FixSuccessful)
	require.True(t, snap.ErrorHistory[2].FixSuccessful)
	require.Equal(t, "added pragma", snap.ErrorHistory[2].FixMessage)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	c := New("wf-4", "prompt")
	c.SetContractInfo(&ContractInfo{Name: "TestToken", Category: ContractERC20})

	snap := c.Snapshot()
	snap.ContractInfo.Name = "Mutated"

	require.Equal(t, "TestToken", c.Snapshot().ContractInfo.Name)
}

func TestMarshalJSONRoundTrips(t *testing.T) {
	c := New("wf-5", "prompt")
	c.AppendStageResult(StageResult{Stage: StageInputParsing, Status: StageStatusSuccess})
	c.SetStatus(StatusSuccess, false)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "wf-5", decoded.WorkflowID)
	require.Equal(t, StatusSuccess, decoded.Status)
	require.Len(t, decoded.Stages, 1)
}
