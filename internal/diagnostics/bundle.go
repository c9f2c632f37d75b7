// Package diagnostics defines the final diagnostic bundle written on entry
// to the output stage, and validates it against a JSON Schema so a
// malformed bundle is caught before it's trusted by downstream tooling.
package diagnostics

import (
	"encoding/json"
	"runtime"
	"time"

	"github.com/contractforge/forge/internal/workflowcontext"
)

// SystemInfo captures the runtime environment the workflow executed under.
type SystemInfo struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// CurrentSystemInfo reports the running process's OS/arch.
func CurrentSystemInfo() SystemInfo {
	return SystemInfo{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Bundle is the full diagnostic document persisted to
// "<workspace>/.workflow_contexts/<workflow_id>_diagnostics.json".
type Bundle struct {
	WorkflowID      string                         `json:"workflow_id"`
	UserPrompt      string                         `json:"user_prompt"`
	SystemInfo      SystemInfo                     `json:"system_info"`
	ToolVersions    map[string]string               `json:"tool_versions"`
	Stages          []workflowcontext.StageResult   `json:"stages"`
	Errors          []workflowcontext.ErrorRecord   `json:"errors"`
	RetryAttempts   map[workflowcontext.StageName]int `json:"retry_attempts"`
	FinalStatus     workflowcontext.Status         `json:"final_status"`
	ContractInfo    *workflowcontext.ContractInfo  `json:"contract_info,omitempty"`
	RAGStatus       *workflowcontext.RAGStatus     `json:"rag_status,omitempty"`
	GeneratedSource string                         `json:"generated_source,omitempty"`
	GeneratedAt     time.Time                      `json:"generated_at"`
}

// FromSnapshot builds a Bundle from a workflow Snapshot. toolVersions and
// generatedSource are supplied separately since they aren't part of the
// Context the Orchestrator owns.
func FromSnapshot(snap workflowcontext.Snapshot, toolVersions map[string]string, generatedSource string) Bundle {
	var ragStatus *workflowcontext.RAGStatus
	if snap.RAGStatus.ContextRetrieved || snap.RAGStatus.Scope != "" {
		rs := snap.RAGStatus
		ragStatus = &rs
	}

	return Bundle{
		WorkflowID:      snap.WorkflowID,
		UserPrompt:      snap.UserPrompt,
		SystemInfo:      CurrentSystemInfo(),
		ToolVersions:    toolVersions,
		Stages:          snap.Stages,
		Errors:          snap.ErrorHistory,
		RetryAttempts:   snap.RetryAttempts,
		FinalStatus:     snap.Status,
		ContractInfo:    snap.ContractInfo,
		RAGStatus:       ragStatus,
		GeneratedSource: generatedSource,
		GeneratedAt:     time.Now().UTC(),
	}
}

// MarshalIndent renders the bundle as indented JSON, the on-disk format.
func (b Bundle) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}
