package diagnostics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contractforge/forge/internal/workflowcontext"
)

func TestFromSnapshotPopulatesRequiredFields(t *testing.T) {
	ctx := workflowcontext.New("wf-1", "deploy an ERC20 token")
	ctx.AppendStageResult(workflowcontext.StageResult{
		Stage:      workflowcontext.StageGeneration,
		Status:     workflowcontext.StageStatusSuccess,
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	})
	ctx.SetStatus(workflowcontext.StatusSuccess, false)

	bundle := FromSnapshot(ctx.Snapshot(), map[string]string{"solc": "0.8.20"}, "")

	require.Equal(t, "wf-1", bundle.WorkflowID)
	require.Equal(t, workflowcontext.StatusSuccess, bundle.FinalStatus)
	require.Len(t, bundle.Stages, 1)
	require.Equal(t, "0.8.20", bundle.ToolVersions["solc"])
}

func TestValidateAcceptsWellFormedBundle(t *testing.T) {
	ctx := workflowcontext.New("wf-2", "deploy an ERC721 collection")
	ctx.SetStatus(workflowcontext.StatusSuccess, false)
	bundle := FromSnapshot(ctx.Snapshot(), map[string]string{}, "")

	data, err := bundle.MarshalIndent()
	require.NoError(t, err)

	errs := Validate(data)
	require.Empty(t, errs)
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	errs := Validate([]byte(`{"user_prompt": "x"}`))
	require.NotEmpty(t, errs)
}

func TestValidateRejectsUnknownFinalStatus(t *testing.T) {
	malformed := []byte(`{
		"workflow_id": "wf-3",
		"user_prompt": "x",
		"system_info": {"os": "linux", "arch": "amd64"},
		"tool_versions": {},
		"stages": [],
		"errors": [],
		"retry_attempts": {},
		"final_status": "bogus",
		"generated_at": "2026-01-01T00:00:00Z"
	}`)
	errs := Validate(malformed)
	require.NotEmpty(t, errs)
}
