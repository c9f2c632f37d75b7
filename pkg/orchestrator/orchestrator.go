// Package orchestrator implements the Workflow Orchestrator: the stage
// machine that turns a natural-language prompt into a generated, compiled,
// audited, deployed, and verified contract, with a retry/repair loop around
// every stage and a diagnostic bundle guaranteed on every exit path.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/contractforge/forge/internal/atomicfile"
	"github.com/contractforge/forge/internal/corelog"
	"github.com/contractforge/forge/internal/diagnostics"
	"github.com/contractforge/forge/internal/obs"
	"github.com/contractforge/forge/internal/scratch"
	"github.com/contractforge/forge/internal/workflowcontext"
	"github.com/contractforge/forge/pkg/agentmemory"
	"github.com/contractforge/forge/pkg/artifactstore"
	"github.com/contractforge/forge/pkg/guardrails"
	"github.com/contractforge/forge/pkg/modelrouter"
	"github.com/contractforge/forge/pkg/repair"
	"github.com/contractforge/forge/pkg/toolchain"
)

// UploadScope selects whether (and where) the workflow context itself is
// uploaded to the Dual-Scope Artifact Store once the workflow finishes.
type UploadScope string

const (
	UploadScopeNone      UploadScope = "none"
	UploadScopeTeam      UploadScope = "team"
	UploadScopeCommunity UploadScope = "community"
)

// RAGScope controls which retrieval namespace the generation stage may
// draw context from.
type RAGScope string

const (
	RAGScopeOfficialOnly     RAGScope = "official-only"
	RAGScopeCommunityAllowed RAGScope = "community-allowed"
)

// Options is the per-run configuration passed to Run.
type Options struct {
	Network          string
	AutoVerification bool
	TestOnly         bool
	AllowInsecure    bool
	UploadScope      UploadScope
	RAGScope         RAGScope
	MaxRetries       int // per-stage retry ceiling; 0 uses guardrails.DefaultMaxRetriesPerStage
	RPCURL           string
	ChainID          int64
	PrivateKey       string
	WorkspaceRoot    string
}

// RAGRetriever fetches retrieval context for a prompt, scoped by RAGScope.
// A nil Retriever degrades generation to the base prompt, matching the
// RAGStatus.ContextRetrieved=false, unknown-failure-mode contract.
type RAGRetriever interface {
	Retrieve(ctx context.Context, prompt string, scope RAGScope) (context string, sources []string, err error)
}

// Dependencies bundles every collaborator the stage runners need. No nil
// field causes a panic: a nil Resolver, Auditor, Deployer or Verifier skips
// its stage, a nil Router or Compiler fails its stage with an Error Record,
// and the remaining optional collaborators are simply not used.
type Dependencies struct {
	Router     *modelrouter.Router
	Repairer   *repair.Repairer
	Memory     *agentmemory.Memory
	Mirror     *agentmemory.RedisMirror
	Store      *artifactstore.Store
	Resolver   toolchain.Resolver
	Compiler   toolchain.Compiler
	Deployer   toolchain.Deployer
	Verifier   toolchain.Verifier
	Auditor    toolchain.Auditor
	Retriever  RAGRetriever
	Escalator  *guardrails.Escalator
	RateLimiter *guardrails.RateLimiter
	Logger     corelog.Logger
	ToolVersions map[string]string
}

// Orchestrator runs workflows against a fixed set of Dependencies.
type Orchestrator struct {
	deps      Dependencies
	workspace string
	logger    corelog.Logger
}

// New builds an Orchestrator rooted at workspace (the prepared workspace
// directory; see internal/workspace.Prepare).
func New(workspace string, deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = corelog.NoOp{}
	}
	if ca, ok := logger.(corelog.ComponentAware); ok {
		logger = ca.WithComponent("orchestrator")
	}
	return &Orchestrator{deps: deps, workspace: workspace, logger: logger}
}

// Run executes the full stage sequence for userPrompt and returns the
// final Workflow Context snapshot. Run never returns an error for
// in-workflow failures — those become Error Records and a terminal status;
// it only returns an error for conditions that prevent a workflow from
// starting at all (e.g. scratch directory acquisition failure).
func (o *Orchestrator) Run(ctx context.Context, userPrompt string, opts Options) (workflowcontext.Snapshot, error) {
	workflowID := uuid.NewString()
	wfCtx := workflowcontext.New(workflowID, userPrompt)

	limiter := guardrails.NewRetryLimiter(opts.MaxRetries)

	dir, err := scratch.Acquire(o.workspace, workflowID)
	if err != nil {
		return workflowcontext.Snapshot{}, fmt.Errorf("orchestrator: acquire scratch dir: %w", err)
	}

	run := &run{
		o:        o,
		ctx:      wfCtx,
		opts:     opts,
		limiter:  limiter,
		scratch:  dir,
		prompt:   userPrompt,
		ragCtx:   "",
	}

	preserve := run.execute(ctx)
	_ = dir.Close(preserve)

	return wfCtx.Snapshot(), nil
}

// run carries the mutable per-workflow state threaded through stage
// execution: the evolving (prompt, RAG context) pair repair rewrites, plus
// whatever each stage produces for the next one to consume.
type run struct {
	o       *Orchestrator
	ctx     *workflowcontext.Context
	opts    Options
	limiter *guardrails.RetryLimiter
	scratch *scratch.Dir

	prompt string
	ragCtx string

	generatedSource string
	compiledABI     string
	contractName    string
	deployAddress   string
	lastAudit       *toolchain.AuditResult
}

// stageOutcome is what a single stage attempt reports back to the driver
// loop, independent of how the attempt is represented on disk.
type stageOutcome struct {
	status       workflowcontext.StageStatus
	errorType    workflowcontext.ErrorType
	errorMessage string
	inputs       map[string]interface{}
	outputs      map[string]interface{}
}

// stageFn runs one attempt of a stage against the shared run state.
type stageFn func(ctx context.Context, r *run) stageOutcome

// pipeline is the fixed, linear stage sequence. output always runs and is
// driven separately by execute.
var pipeline = []struct {
	name     workflowcontext.StageName
	critical bool
	run      stageFn
}{
	{workflowcontext.StageInputParsing, true, runInputParsing},
	{workflowcontext.StageGeneration, true, runGeneration},
	{workflowcontext.StageCompilation, true, runCompilation},
	{workflowcontext.StageDependencyResolution, false, runDependencyResolution},
	{workflowcontext.StageAudit, false, runAudit},
	{workflowcontext.StageDeployment, false, runDeployment},
	{workflowcontext.StageVerification, false, runVerification},
}

// execute drives the stage sequence with the retry/repair loop, recovers
// panics crossing a stage boundary, and always finishes by running output.
// It returns whether the scratch directory should be preserved for
// debugging (true iff the workflow ended in error).
func (r *run) execute(ctx context.Context) bool {
	for _, stage := range pipeline {
		if ctx.Err() != nil {
			r.recordCancelled(stage.name)
			break
		}
		if r.shouldSkip(stage.name) {
			r.ctx.AppendStageResult(workflowcontext.StageResult{
				Stage:      stage.name,
				Status:     workflowcontext.StageStatusSkipped,
				StartedAt:  time.Now().UTC(),
				FinishedAt: time.Now().UTC(),
			})
			continue
		}

		ok := r.runStageWithRetries(ctx, stage.name, stage.critical, stage.run)
		if !ok && stage.critical {
			r.ctx.SetStatus(workflowcontext.StatusError, true)
			runOutput(ctx, r)
			return true
		}
		if r.ctx.Snapshot().Status == workflowcontext.StatusError {
			break // a cancelled stage goes straight to output
		}
	}

	if r.ctx.Snapshot().Status == workflowcontext.StatusRunning {
		if len(r.ctx.Snapshot().FailedStages) > 0 {
			r.ctx.SetStatus(workflowcontext.StatusCompletedWithErrors, false)
		} else {
			r.ctx.SetStatus(workflowcontext.StatusSuccess, false)
		}
	}
	runOutput(ctx, r)
	return r.ctx.Snapshot().Status == workflowcontext.StatusError
}

// shouldSkip implements the options-driven conditional stages: deployment
// is skipped under test_only, and verification is skipped whenever
// deployment didn't happen or auto_verification is off.
func (r *run) shouldSkip(stage workflowcontext.StageName) bool {
	switch stage {
	case workflowcontext.StageDeployment:
		return r.opts.TestOnly
	case workflowcontext.StageVerification:
		return r.opts.TestOnly || !r.opts.AutoVerification || r.deployAddress == ""
	default:
		return false
	}
}

// runStageWithRetries runs one stage to success, exhaustion, or a
// cancelled context, applying Adaptive Prompt Repair between attempts and
// escalating once the retry budget is spent. When an attempt succeeds right
// after a repair, the preceding Error Record is marked fixed. It returns
// false only when a critical stage's budget was exhausted or a critical
// stage was cancelled.
func (r *run) runStageWithRetries(ctx context.Context, name workflowcontext.StageName, critical bool, fn stageFn) bool {
	var pendingFix string
	for {
		if ctx.Err() != nil {
			r.recordCancelled(name)
			return !critical
		}

		outcome := r.runOnce(ctx, name, fn)
		if outcome.status == workflowcontext.StageStatusSuccess || outcome.status == workflowcontext.StageStatusDegraded {
			r.ctx.ClearFailedStage(name)
			if pendingFix != "" {
				r.ctx.MarkFixSuccessful(name, pendingFix)
			}
			return true
		}

		errRecord := workflowcontext.ErrorRecord{
			Stage:        name,
			Timestamp:    time.Now().UTC(),
			ErrorType:    outcome.errorType,
			ErrorMessage: outcome.errorMessage,
		}
		r.ctx.AppendError(errRecord)
		count := r.ctx.IncrementRetry(name)

		if count < r.limiter.MaxRetriesPerStage {
			pendingFix = r.repairBeforeRetry(ctx, name, outcome)
			if name == workflowcontext.StageCompilation && requiresRegeneration(outcome.errorType) {
				r.regenerateForCompileRepair(ctx)
			}
			continue
		}

		r.ctx.MarkFailedStage(name)
		r.escalate(ctx, name, outcome, count)
		return !critical
	}
}

// regenerateForCompileRepair re-enters the generation stage with the
// (prompt, ragCtx) pair Adaptive Prompt Repair just rewrote, so the next
// compilation attempt sees genuinely new source rather than recompiling
// the same bytes that just failed. It counts as a generation retry: the
// compile failure traces back to something generation produced, not to
// compilation itself.
func (r *run) regenerateForCompileRepair(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.ctx.IncrementRetry(workflowcontext.StageGeneration)
	r.runOnce(ctx, workflowcontext.StageGeneration, runGeneration)
}

// runOnce wraps a single stage attempt with panic recovery, converting any
// panic crossing the stage boundary into an unknown-typed error outcome
// rather than ever letting it propagate to the caller.
func (r *run) runOnce(ctx context.Context, name workflowcontext.StageName, fn stageFn) (outcome stageOutcome) {
	started := time.Now().UTC()
	ctx, span := obs.StartSpan(ctx, "orchestrator.stage."+string(name))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			r.o.logger.Error("stage panicked", map[string]interface{}{
				"stage": string(name),
				"panic": fmt.Sprintf("%v", rec),
				"stack": string(debug.Stack()),
			})
			outcome = stageOutcome{
				status:       workflowcontext.StageStatusError,
				errorType:    workflowcontext.ErrorTypeUnknown,
				errorMessage: fmt.Sprintf("panic: %v", rec),
			}
		}

		finished := time.Now().UTC()
		status := outcome.status
		var errPtr *workflowcontext.ErrorRecord
		if status == workflowcontext.StageStatusError {
			errPtr = &workflowcontext.ErrorRecord{
				Stage: name, Timestamp: finished, ErrorType: outcome.errorType, ErrorMessage: outcome.errorMessage,
			}
		}
		r.ctx.AppendStageResult(workflowcontext.StageResult{
			Stage:          name,
			Status:         status,
			StartedAt:      started,
			FinishedAt:     finished,
			DurationMS:     finished.Sub(started).Milliseconds(),
			InputsSummary:  outcome.inputs,
			OutputsSummary: outcome.outputs,
			Error:          errPtr,
		})
		obs.Counter(ctx, "orchestrator.stage.attempts", "stage", string(name), "status", string(status))
		if err := r.ctx.Save(r.o.workspace + "/.workflow_contexts"); err != nil {
			r.o.logger.Warn("workflow context persist failed", map[string]interface{}{"stage": string(name), "error": err.Error()})
		}
	}()

	outcome = fn(ctx, r)
	return outcome
}

func (r *run) recordCancelled(stage workflowcontext.StageName) {
	r.ctx.AppendError(workflowcontext.ErrorRecord{
		Stage:        stage,
		Timestamp:    time.Now().UTC(),
		ErrorType:    workflowcontext.ErrorTypeCancelled,
		ErrorMessage: "context cancelled",
	})
	r.ctx.MarkFailedStage(stage)
	r.ctx.SetStatus(workflowcontext.StatusError, stage.IsCritical())
}

// repairBeforeRetry asks Adaptive Prompt Repair (memory-directed, then
// pattern-directed, then LLM rephrase) to rewrite (prompt, ragCtx) before
// the next attempt, per the ordering rule: memory > pattern > LLM rephrase.
// It returns the fix message for the applied repair, or "" when none was
// applied.
func (r *run) repairBeforeRetry(ctx context.Context, stage workflowcontext.StageName, outcome stageOutcome) string {
	if r.o.deps.Repairer == nil {
		return ""
	}
	result := r.o.deps.Repairer.Repair(r.prompt, r.ragCtx, outcome.errorMessage, outcome.errorType, stage)
	if !result.Repaired && stage == workflowcontext.StageGeneration && r.o.deps.Router != nil {
		if llmResult, err := repair.RephraseWithLLM(ctx, r.o.deps.Router, r.prompt, r.ragCtx, outcome.errorMessage); err == nil {
			result = llmResult
		}
	}
	r.prompt = result.Prompt
	r.ragCtx = result.RAGContext
	if result.Repaired {
		return "repaired via " + string(result.Tag)
	}
	return ""
}

func (r *run) escalate(ctx context.Context, stage workflowcontext.StageName, outcome stageOutcome, count int) {
	if r.o.deps.Escalator == nil {
		return
	}
	snap := r.ctx.Snapshot()
	if err := r.o.deps.Escalator.Escalate(ctx, snap.WorkflowID, stage, outcome.errorMessage, count, snap.DiagnosticBundlePath, r.prompt); err != nil {
		r.o.logger.Warn("escalation failed", map[string]interface{}{"stage": string(stage), "error": err.Error()})
	}
}

// runOutput persists the diagnostic bundle (always) and, if configured,
// uploads the workflow context to the artifact store. It never fails the
// workflow: any error here is logged, not raised.
func runOutput(ctx context.Context, r *run) {
	started := time.Now().UTC()
	snap := r.ctx.Snapshot()
	bundle := diagnostics.FromSnapshot(snap, r.o.deps.ToolVersions, r.generatedSource)

	data, err := bundle.MarshalIndent()
	if err != nil {
		r.o.logger.Error("diagnostic bundle marshal failed", map[string]interface{}{"error": err.Error()})
	} else {
		path := fmt.Sprintf("%s/.workflow_contexts/%s_diagnostics.json", r.o.workspace, snap.WorkflowID)
		if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
			r.o.logger.Error("diagnostic bundle write failed", map[string]interface{}{"error": err.Error()})
		} else {
			r.ctx.SetDiagnosticBundlePath(path)
		}
	}

	if r.o.deps.Memory != nil {
		if err := r.o.deps.Memory.Add(snap); err != nil {
			r.o.logger.Warn("agent memory persist failed", map[string]interface{}{"error": err.Error()})
		} else if r.o.deps.Mirror != nil {
			if err := r.o.deps.Mirror.Publish(ctx, r.o.deps.Memory.Statistics()); err != nil {
				r.o.logger.Warn("agent memory redis mirror publish failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	if r.o.deps.Store != nil && r.opts.UploadScope != UploadScopeNone && r.opts.UploadScope != "" {
		scope := artifactstore.ScopeTeam
		if r.opts.UploadScope == UploadScopeCommunity {
			scope = artifactstore.ScopeCommunity
		}
		contextJSON, err := r.ctx.MarshalJSON()
		if err == nil {
			_, uploadErr := r.o.deps.Store.Upload(ctx, artifactstore.UploadRequest{
				Content:      contextJSON,
				ArtifactType: "workflow",
				Scope:        scope,
			})
			if uploadErr != nil {
				r.o.logger.Warn("workflow context upload failed", map[string]interface{}{"error": uploadErr.Error()})
			}
		}
	}

	r.ctx.AppendStageResult(workflowcontext.StageResult{
		Stage:      workflowcontext.StageOutput,
		Status:     workflowcontext.StageStatusSuccess,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	})
}
