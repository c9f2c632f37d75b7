// Package workflowcontext defines the Workflow Context, Stage Result, and
// Error Record types that every other package in this module reads and
// writes. The Orchestrator is the sole writer of a Context; everything else
// receives a Snapshot.
package workflowcontext

import (
	"encoding/json"
	"sync"
	"time"
)

// Status is the terminal (or in-flight) state of a workflow.
type Status string

const (
	StatusRunning              Status = "running"
	StatusSuccess              Status = "success"
	StatusCompletedWithErrors  Status = "completed_with_errors"
	StatusError                Status = "error"
)

// StageName identifies one of the eight fixed pipeline stages.
type StageName string

const (
	StageInputParsing          StageName = "input_parsing"
	StageGeneration            StageName = "generation"
	StageCompilation           StageName = "compilation"
	StageDependencyResolution  StageName = "dependency_resolution"
	StageAudit                 StageName = "audit"
	StageDeployment            StageName = "deployment"
	StageVerification          StageName = "verification"
	StageOutput                StageName = "output"
)

// CriticalStages are the only stages whose terminal failure marks the whole
// workflow as StatusError.
var CriticalStages = map[StageName]bool{
	StageGeneration:  true,
	StageCompilation: true,
}

// IsCritical reports whether s is a critical stage.
func (s StageName) IsCritical() bool { return CriticalStages[s] }

// StageStatus is the outcome of one stage attempt.
type StageStatus string

const (
	StageStatusSuccess  StageStatus = "success"
	StageStatusError    StageStatus = "error"
	StageStatusSkipped  StageStatus = "skipped"
	StageStatusDegraded StageStatus = "degraded"
)

// ErrorType is the closed classification tag attached to an Error Record.
type ErrorType string

const (
	ErrorTypeMissingPragma        ErrorType = "missing_pragma"
	ErrorTypeMissingImport        ErrorType = "missing_import"
	ErrorTypeVariableShadowing    ErrorType = "variable_shadowing"
	ErrorTypeUnknownContractType  ErrorType = "unknown_contract_type"
	ErrorTypeEmptyContext         ErrorType = "empty_context"
	ErrorTypeCompilationError     ErrorType = "compilation_error"
	ErrorTypeInsufficientFunds    ErrorType = "insufficient_funds"
	ErrorTypeGas                  ErrorType = "gas"
	ErrorTypeRPCTimeout           ErrorType = "rpc_timeout"
	ErrorTypeRevert               ErrorType = "revert"
	ErrorTypeChainMismatch        ErrorType = "chain_mismatch"
	ErrorTypeRateLimit            ErrorType = "rate_limit"
	ErrorTypeAuth                 ErrorType = "auth"
	ErrorTypeRAGUnavailable       ErrorType = "rag_unavailable"
	ErrorTypePinFailed            ErrorType = "pin_failed"
	ErrorTypeCancelled            ErrorType = "cancelled"
	ErrorTypeUnknown              ErrorType = "unknown"
)

// ContractCategory classifies the generated contract for Agent Memory and
// prompt repair's unknown_contract_type rewriter.
type ContractCategory string

const (
	ContractERC20   ContractCategory = "ERC20"
	ContractERC721  ContractCategory = "ERC721"
	ContractDeFi    ContractCategory = "DeFi"
	ContractDAO     ContractCategory = "DAO"
	ContractCustom  ContractCategory = "Custom"
)

// RAGStatus records whether retrieval-augmented context was fetched for
// generation, and from which scope.
type RAGStatus struct {
	ContextRetrieved bool     `json:"context_retrieved"`
	Scope            string   `json:"scope,omitempty"`
	Sources          []string `json:"sources,omitempty"`
}

// ContractInfo describes the generated contract once known.
type ContractInfo struct {
	Name       string           `json:"name"`
	Category   ContractCategory `json:"category"`
	SourcePath string           `json:"source_path,omitempty"`
	SourceHash string           `json:"source_hash,omitempty"`
}

// ErrorRecord is one classified failure observed during a stage attempt.
type ErrorRecord struct {
	Stage         StageName `json:"stage"`
	Timestamp     time.Time `json:"timestamp"`
	ErrorType     ErrorType `json:"error_type"`
	ErrorMessage  string    `json:"error_message"`
	FixSuccessful bool      `json:"fix_successful"`
	FixMessage    string    `json:"fix_message,omitempty"`
}

// StageResult is one attempt at one stage.
type StageResult struct {
	Stage          StageName              `json:"stage"`
	Status         StageStatus            `json:"status"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at"`
	DurationMS     int64                  `json:"duration_ms"`
	InputsSummary  map[string]interface{} `json:"inputs_summary,omitempty"`
	OutputsSummary map[string]interface{} `json:"outputs_summary,omitempty"`
	Error          *ErrorRecord           `json:"error,omitempty"`
}

// Context is the full state of a single workflow. The Orchestrator owns
// this value exclusively; every other reader gets a Snapshot.
type Context struct {
	mu sync.RWMutex

	WorkflowID           string               `json:"workflow_id"`
	UserPrompt           string               `json:"user_prompt"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
	Status               Status               `json:"status"`
	CriticalFailure      bool                 `json:"critical_failure"`
	Stages               []StageResult        `json:"stages"`
	ErrorHistory         []ErrorRecord        `json:"error_history"`
	RetryAttempts        map[StageName]int    `json:"retry_attempts"`
	RAGStatus            RAGStatus            `json:"rag_status"`
	ModelProvider        string               `json:"model_provider,omitempty"`
	ContractInfo         *ContractInfo        `json:"contract_info,omitempty"`
	FailedStages         map[StageName]bool   `json:"failed_stages"`
	DiagnosticBundlePath string               `json:"diagnostic_bundle_path,omitempty"`
}

// New creates a fresh, running Context for a single user prompt.
func New(workflowID, userPrompt string) *Context {
	now := time.Now().UTC()
	return &Context{
		WorkflowID:    workflowID,
		UserPrompt:    userPrompt,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        StatusRunning,
		RetryAttempts: make(map[StageName]int),
		FailedStages:  make(map[StageName]bool),
	}
}

// AppendStageResult records one stage attempt and refreshes UpdatedAt.
func (c *Context) AppendStageResult(r StageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Stages = append(c.Stages, r)
	c.UpdatedAt = time.Now().UTC()
}

// AppendError records an Error Record and refreshes UpdatedAt.
func (c *Context) AppendError(e ErrorRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ErrorHistory = append(c.ErrorHistory, e)
	c.UpdatedAt = time.Now().UTC()
}

// MarkFixSuccessful flags the most recent Error Record for stage as fixed.
// It is called once a retried stage attempt succeeds, per the Error Record
// invariant that fix_successful is set after the next attempt resolves it.
func (c *Context) MarkFixSuccessful(stage StageName, fixMessage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.ErrorHistory) - 1; i >= 0; i-- {
		if c.ErrorHistory[i].Stage == stage {
			c.ErrorHistory[i].FixSuccessful = true
			if fixMessage != "" {
				c.ErrorHistory[i].FixMessage = fixMessage
			}
			return
		}
	}
}

// IncrementRetry bumps retry_attempts[stage] and returns the new count.
func (c *Context) IncrementRetry(stage StageName) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RetryAttempts[stage]++
	c.UpdatedAt = time.Now().UTC()
	return c.RetryAttempts[stage]
}

// RetryCount returns the current retry count for stage without mutating it.
func (c *Context) RetryCount(stage StageName) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.RetryAttempts[stage]
}

// MarkFailedStage records that stage's last attempt failed.
func (c *Context) MarkFailedStage(stage StageName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FailedStages[stage] = true
	c.UpdatedAt = time.Now().UTC()
}

// ClearFailedStage removes stage from the failed set, used when a retry
// eventually succeeds.
func (c *Context) ClearFailedStage(stage StageName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.FailedStages, stage)
	c.UpdatedAt = time.Now().UTC()
}

// SetStatus transitions the workflow's terminal status.
func (c *Context) SetStatus(status Status, criticalFailure bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = status
	c.CriticalFailure = criticalFailure
	c.UpdatedAt = time.Now().UTC()
}

// SetDiagnosticBundlePath records where the final diagnostic bundle landed.
func (c *Context) SetDiagnosticBundlePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DiagnosticBundlePath = path
	c.UpdatedAt = time.Now().UTC()
}

// SetRAGStatus records the outcome of the retrieval step.
func (c *Context) SetRAGStatus(rs RAGStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RAGStatus = rs
	c.UpdatedAt = time.Now().UTC()
}

// SetModelProvider records which model served the generation stage.
func (c *Context) SetModelProvider(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ModelProvider = name
	c.UpdatedAt = time.Now().UTC()
}

// SetContractInfo records the classified contract once generation succeeds.
func (c *Context) SetContractInfo(info *ContractInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ContractInfo = info
	c.UpdatedAt = time.Now().UTC()
}

// Snapshot is a read-only, deep-copied view of a Context, safe to hand to
// any component that only ever reads workflow state.
type Snapshot struct {
	WorkflowID           string             `json:"workflow_id"`
	UserPrompt           string             `json:"user_prompt"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	Status               Status             `json:"status"`
	CriticalFailure      bool               `json:"critical_failure"`
	Stages               []StageResult      `json:"stages"`
	ErrorHistory         []ErrorRecord      `json:"error_history"`
	RetryAttempts        map[StageName]int  `json:"retry_attempts"`
	RAGStatus            RAGStatus          `json:"rag_status"`
	ModelProvider        string             `json:"model_provider,omitempty"`
	ContractInfo         *ContractInfo      `json:"contract_info,omitempty"`
	FailedStages         map[StageName]bool `json:"failed_stages"`
	DiagnosticBundlePath string             `json:"diagnostic_bundle_path,omitempty"`
}

// Snapshot returns a deep copy of the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stages := make([]StageResult, len(c.Stages))
	copy(stages, c.Stages)

	errs := make([]ErrorRecord, len(c.ErrorHistory))
	copy(errs, c.ErrorHistory)

	retries := make(map[StageName]int, len(c.RetryAttempts))
	for k, v := range c.RetryAttempts {
		retries[k] = v
	}

	failed := make(map[StageName]bool, len(c.FailedStages))
	for k, v := range c.FailedStages {
		failed[k] = v
	}

	var contractInfo *ContractInfo
	if c.ContractInfo != nil {
		ci := *c.ContractInfo
		contractInfo = &ci
	}

	return Snapshot{
		WorkflowID:           c.WorkflowID,
		UserPrompt:           c.UserPrompt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
		Status:               c.Status,
		CriticalFailure:      c.CriticalFailure,
		Stages:               stages,
		ErrorHistory:         errs,
		RetryAttempts:        retries,
		RAGStatus:            c.RAGStatus,
		ModelProvider:        c.ModelProvider,
		ContractInfo:         contractInfo,
		FailedStages:         failed,
		DiagnosticBundlePath: c.DiagnosticBundlePath,
	}
}

// MarshalJSON lets Context participate directly in json.Marshal despite the
// embedded mutex, by marshaling through Snapshot's shape.
func (c *Context) MarshalJSON() ([]byte, error) {
	s := c.Snapshot()
	return json.Marshal(struct {
		WorkflowID           string               `json:"workflow_id"`
		UserPrompt           string               `json:"user_prompt"`
		CreatedAt            time.Time            `json:"created_at"`
		UpdatedAt            time.Time            `json:"updated_at"`
		Status               Status               `json:"status"`
		CriticalFailure      bool                 `json:"critical_failure"`
		Stages               []StageResult        `json:"stages"`
		ErrorHistory         []ErrorRecord        `json:"error_history"`
		RetryAttempts        map[StageName]int    `json:"retry_attempts"`
		RAGStatus            RAGStatus            `json:"rag_status"`
		ModelProvider        string               `json:"model_provider,omitempty"`
		ContractInfo         *ContractInfo        `json:"contract_info,omitempty"`
		FailedStages         map[StageName]bool   `json:"failed_stages"`
		DiagnosticBundlePath string               `json:"diagnostic_bundle_path,omitempty"`
	}{
		WorkflowID:           s.WorkflowID,
		UserPrompt:           s.UserPrompt,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
		Status:               s.Status,
		CriticalFailure:      s.CriticalFailure,
		Stages:               s.Stages,
		ErrorHistory:         s.ErrorHistory,
		RetryAttempts:        s.RetryAttempts,
		RAGStatus:            s.RAGStatus,
		ModelProvider:        s.ModelProvider,
		ContractInfo:         s.ContractInfo,
		FailedStages:         s.FailedStages,
		DiagnosticBundlePath: s.DiagnosticBundlePath,
	})
}
