package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/contractforge/forge/internal/workflowcontext"
	"github.com/contractforge/forge/pkg/modelrouter"
	"github.com/contractforge/forge/pkg/toolchain"
)

// runInputParsing classifies the prompt's contract category and, if a
// Retriever is configured, fetches RAG context scoped by opts.RAGScope.
// It never fails the workflow on a retrieval miss — a failed or absent
// retrieval just means generation proceeds on the base prompt.
func runInputParsing(ctx context.Context, r *run) stageOutcome {
	category := classifyPrompt(r.prompt)
	r.ctx.SetContractInfo(&workflowcontext.ContractInfo{Category: category})

	ragStatus := workflowcontext.RAGStatus{ContextRetrieved: false}
	if r.o.deps.Retriever != nil {
		content, sources, err := r.o.deps.Retriever.Retrieve(ctx, r.prompt, r.opts.RAGScope)
		if err != nil {
			ragStatus = workflowcontext.RAGStatus{ContextRetrieved: false, Scope: string(r.opts.RAGScope)}
		} else {
			r.ragCtx = content
			ragStatus = workflowcontext.RAGStatus{ContextRetrieved: true, Scope: string(r.opts.RAGScope), Sources: sources}
		}
	}
	r.ctx.SetRAGStatus(ragStatus)

	return stageOutcome{
		status:  workflowcontext.StageStatusSuccess,
		outputs: map[string]interface{}{"contract_category": string(category), "rag_retrieved": ragStatus.ContextRetrieved},
	}
}

// classifyPrompt guesses a contract category from prompt keywords. It
// mirrors repair's unknown_contract_type classifier, applied here against
// the original request rather than an error message.
func classifyPrompt(prompt string) workflowcontext.ContractCategory {
	lower := strings.ToLower(prompt)
	switch {
	case containsAny(lower, "erc-20", "erc20", "token", "fungible"):
		return workflowcontext.ContractERC20
	case containsAny(lower, "erc-721", "erc721", "nft", "collectible"):
		return workflowcontext.ContractERC721
	case containsAny(lower, "swap", "liquidity", "yield", "stake", "lending", "defi"):
		return workflowcontext.ContractDeFi
	case containsAny(lower, "dao", "governance", "voting", "proposal"):
		return workflowcontext.ContractDAO
	default:
		return workflowcontext.ContractCustom
	}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// runGeneration calls the Model Router to produce Solidity source from the
// current (prompt, ragCtx) pair.
func runGeneration(ctx context.Context, r *run) stageOutcome {
	if r.o.deps.Router == nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeUnknown, errorMessage: "no model router configured"}
	}

	fullPrompt := r.prompt
	if r.ragCtx != "" {
		fullPrompt = r.ragCtx + "\n\n" + r.prompt
	}

	resp, err := r.o.deps.Router.Generate(ctx, fullPrompt, modelrouter.SelectionRequest{
		EstimatedInputTokens:  modelrouter.EstimateTokens(fullPrompt),
		EstimatedOutputTokens: 4096,
		TaskType:              "contract_generation",
	})
	if err != nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: classifyGenerationError(err.Error()), errorMessage: err.Error()}
	}

	r.generatedSource = resp.Content
	r.ctx.SetModelProvider(resp.Model)
	return stageOutcome{
		status:  workflowcontext.StageStatusSuccess,
		outputs: map[string]interface{}{"model": resp.Model, "tokens": resp.Usage.TotalTokens},
	}
}

func classifyGenerationError(message string) workflowcontext.ErrorType {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit"):
		return workflowcontext.ErrorTypeRateLimit
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "auth"):
		return workflowcontext.ErrorTypeAuth
	case strings.Contains(lower, "empty context"), strings.Contains(lower, "no context"):
		return workflowcontext.ErrorTypeEmptyContext
	default:
		return workflowcontext.ErrorTypeUnknown
	}
}

// runCompilation shells out to the Solidity toolchain via the configured
// Compiler against the workflow's scratch directory.
func runCompilation(ctx context.Context, r *run) stageOutcome {
	if r.o.deps.Compiler == nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeCompilationError, errorMessage: "no compiler configured"}
	}
	if r.generatedSource == "" {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeEmptyContext, errorMessage: "no generated source to compile"}
	}

	if err := writeGeneratedSource(r); err != nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeUnknown, errorMessage: err.Error()}
	}

	result, err := r.o.deps.Compiler.Compile(ctx, r.scratch.Path)
	if err != nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeCompilationError, errorMessage: err.Error()}
	}
	if !result.Success {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: classifyCompileError(result.Stderr), errorMessage: result.Stderr}
	}

	r.compiledABI = result.ABI

	hash := sha256.Sum256([]byte(r.generatedSource))
	if info := r.ctx.Snapshot().ContractInfo; info != nil {
		info.SourceHash = hex.EncodeToString(hash[:])
		r.ctx.SetContractInfo(info)
	}

	return stageOutcome{
		status:  workflowcontext.StageStatusSuccess,
		outputs: map[string]interface{}{"bytecode_len": len(result.Bytecode)},
	}
}

func classifyCompileError(stderr string) workflowcontext.ErrorType {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "pragma"):
		return workflowcontext.ErrorTypeMissingPragma
	case strings.Contains(lower, "import"):
		return workflowcontext.ErrorTypeMissingImport
	case strings.Contains(lower, "shadow"):
		return workflowcontext.ErrorTypeVariableShadowing
	default:
		return workflowcontext.ErrorTypeCompilationError
	}
}

// requiresRegeneration reports whether a compilation error type traces
// back to the generated source itself, meaning repair must produce new
// source (via a fresh generation call) rather than recompile the same
// bytes. Every classification classifyCompileError can produce is
// source-rooted, so this currently covers all of them explicitly rather
// than defaulting true, to stay honest as new compile error types appear.
func requiresRegeneration(errType workflowcontext.ErrorType) bool {
	switch errType {
	case workflowcontext.ErrorTypeMissingPragma,
		workflowcontext.ErrorTypeMissingImport,
		workflowcontext.ErrorTypeVariableShadowing,
		workflowcontext.ErrorTypeUnknownContractType,
		workflowcontext.ErrorTypeEmptyContext,
		workflowcontext.ErrorTypeCompilationError:
		return true
	default:
		return false
	}
}

func writeGeneratedSource(r *run) error {
	path := r.scratch.Path + "/src/Contract.sol"
	return writeFileCreatingDirs(path, r.generatedSource)
}

// runDependencyResolution extracts and installs the generated source's
// declared dependencies. A successful resolution that reports any
// dependency re-runs the compiler immediately, since newly-resolved
// remappings can only be picked up by a fresh compile. It does not tell
// newly installed dependencies from ones already vendored: any non-empty
// result triggers the recompile.
func runDependencyResolution(ctx context.Context, r *run) stageOutcome {
	if r.o.deps.Resolver == nil {
		return stageOutcome{status: workflowcontext.StageStatusSkipped}
	}

	deps, err := r.o.deps.Resolver.Resolve(ctx, r.generatedSource)
	if err != nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeUnknown, errorMessage: err.Error()}
	}
	if len(deps) == 0 {
		return stageOutcome{status: workflowcontext.StageStatusSuccess}
	}

	if r.o.deps.Compiler != nil {
		if result, err := r.o.deps.Compiler.Compile(ctx, r.scratch.Path); err == nil && !result.Success {
			return stageOutcome{status: workflowcontext.StageStatusError, errorType: classifyCompileError(result.Stderr), errorMessage: result.Stderr}
		}
	}

	names := make([]string, len(deps))
	for i, d := range deps {
		names[i] = d.Name
	}
	return stageOutcome{status: workflowcontext.StageStatusSuccess, outputs: map[string]interface{}{"dependencies": names}}
}

// runAudit runs static analysis and records the result; it never itself
// blocks deployment — the veto is enforced by runDeployment consulting
// toolchain.RequiresDeploymentVeto against the last audit outcome.
func runAudit(ctx context.Context, r *run) stageOutcome {
	if r.o.deps.Auditor == nil {
		return stageOutcome{status: workflowcontext.StageStatusSkipped}
	}

	result, err := r.o.deps.Auditor.Audit(ctx, r.generatedSource)
	if err != nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeUnknown, errorMessage: err.Error()}
	}

	r.lastAudit = &result
	return stageOutcome{
		status:  workflowcontext.StageStatusSuccess,
		outputs: map[string]interface{}{"severity": string(result.Severity), "findings": len(result.Findings)},
	}
}

// runDeployment broadcasts the compiled contract, honoring the audit veto,
// test_only skip (handled upstream by shouldSkip), and the deployment rate
// limiter.
func runDeployment(ctx context.Context, r *run) stageOutcome {
	if r.o.deps.Deployer == nil {
		return stageOutcome{status: workflowcontext.StageStatusSkipped}
	}
	if r.lastAudit != nil && toolchain.RequiresDeploymentVeto(*r.lastAudit, r.opts.AllowInsecure) {
		return stageOutcome{
			status:       workflowcontext.StageStatusDegraded,
			errorType:    workflowcontext.ErrorTypeUnknown,
			errorMessage: "deployment vetoed: audit severity " + string(r.lastAudit.Severity),
			outputs:      map[string]interface{}{"vetoed": true},
		}
	}
	if r.o.deps.RateLimiter != nil && !r.o.deps.RateLimiter.Allow() {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeRateLimit, errorMessage: "deployment rate limit exceeded"}
	}

	result, err := r.o.deps.Deployer.Deploy(ctx, toolchain.DeployRequest{
		Source:     r.scratch.Path + "/src/Contract.sol",
		RPCURL:     r.opts.RPCURL,
		ChainID:    r.opts.ChainID,
		PrivateKey: r.opts.PrivateKey,
		ABI:        r.compiledABI,
	})
	if err != nil {
		deployErr, ok := err.(*toolchain.DeployError)
		errType := workflowcontext.ErrorTypeUnknown
		if ok {
			errType = deployErrorClassToType(deployErr.Class)
		}
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: errType, errorMessage: err.Error()}
	}

	r.deployAddress = result.Address
	return stageOutcome{
		status:  workflowcontext.StageStatusSuccess,
		outputs: map[string]interface{}{"address": result.Address, "tx_hash": result.TxHash, "gas_used": result.GasUsed},
	}
}

func deployErrorClassToType(class toolchain.DeployErrorClass) workflowcontext.ErrorType {
	switch class {
	case toolchain.DeployErrorGas:
		return workflowcontext.ErrorTypeGas
	case toolchain.DeployErrorInsufficientFunds:
		return workflowcontext.ErrorTypeInsufficientFunds
	case toolchain.DeployErrorRPC:
		return workflowcontext.ErrorTypeRPCTimeout
	case toolchain.DeployErrorRevert:
		return workflowcontext.ErrorTypeRevert
	default:
		return workflowcontext.ErrorTypeUnknown
	}
}

// runVerification submits the deployed contract's source to a block
// explorer. shouldSkip already guarantees this only runs when deployment
// succeeded and auto_verification is enabled.
func runVerification(ctx context.Context, r *run) stageOutcome {
	if r.o.deps.Verifier == nil {
		return stageOutcome{status: workflowcontext.StageStatusSkipped}
	}

	result, err := r.o.deps.Verifier.Verify(ctx, toolchain.VerifyRequest{
		Address: r.deployAddress,
		ChainID: r.opts.ChainID,
		Source:  r.scratch.Path + "/src/Contract.sol",
	})
	if err != nil {
		return stageOutcome{status: workflowcontext.StageStatusError, errorType: workflowcontext.ErrorTypeUnknown, errorMessage: err.Error()}
	}
	if !result.Verified {
		return stageOutcome{status: workflowcontext.StageStatusDegraded, outputs: map[string]interface{}{"verified": false, "details": result.Details}}
	}
	return stageOutcome{status: workflowcontext.StageStatusSuccess, outputs: map[string]interface{}{"verified": true}}
}

func writeFileCreatingDirs(path, content string) error {
	dir := path[:strings.LastIndex(path, "/")]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: create %s: %w", dir, err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
