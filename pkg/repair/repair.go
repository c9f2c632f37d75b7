// Package repair classifies failed-stage error messages into a closed
// set of tags and rewrites the (prompt, RAG context) pair that
// produced them, so the Orchestrator's retry has a better chance of
// succeeding. It follows the same detector/rewriter separation as
// ErrorAnalyzer's HTTP-status routing layer, but the detectors here
// match on error message substrings instead of status codes, and the
// "escalate to LLM" path is a last resort rather than the default.
package repair

import (
	"context"
	"fmt"
	"strings"

	"github.com/contractforge/forge/internal/workflowcontext"
	"github.com/contractforge/forge/pkg/modelrouter"
)

// Pattern is one (detector, rewriter) pair in the pattern table.
type Pattern struct {
	Tag      workflowcontext.ErrorType
	Detector func(message string) bool
	Rewrite  func(prompt, ragContext string) (string, string)
}

// patterns is considered in declaration order; the first matching
// pattern wins.
var patterns = []Pattern{
	{
		Tag: workflowcontext.ErrorTypeMissingPragma,
		Detector: func(msg string) bool {
			return containsAll(msg, "pragma") && containsAny(msg, "missing", "not found")
		},
		Rewrite: func(prompt, rag string) (string, string) {
			return prompt + "\n\nRequirement: declare an explicit Solidity pragma version (e.g. `pragma solidity ^0.8.20;`).", rag
		},
	},
	{
		Tag: workflowcontext.ErrorTypeEmptyContext,
		Detector: func(msg string) bool {
			return containsAny(msg, "empty context", "no context")
		},
		Rewrite: func(prompt, rag string) (string, string) {
			scaffold := "// fallback scaffold: a minimal OpenZeppelin-based contract skeleton with constructor, access control, and NatSpec comments"
			return prompt, joinNonEmpty(rag, scaffold)
		},
	},
	{
		Tag: workflowcontext.ErrorTypeCompilationError,
		Detector: func(msg string) bool {
			return containsAll(msg, "compilation") && containsAll(msg, "error")
		},
		Rewrite: func(prompt, rag string) (string, string) {
			return prompt + "\n\nRequirement: target Solidity ^0.8.20 and pin all imported library versions explicitly.", rag
		},
	},
	{
		Tag: workflowcontext.ErrorTypeUnknownContractType,
		Detector: func(msg string) bool {
			return containsAll(msg, "unknown") && containsAny(msg, "contract", "type")
		},
		Rewrite: func(prompt, rag string) (string, string) {
			category := classifyContractType(prompt)
			return prompt + fmt.Sprintf("\n\nContract type: %s.", category), rag
		},
	},
	{
		Tag: workflowcontext.ErrorTypeMissingImport,
		Detector: func(msg string) bool {
			return containsAll(msg, "import") && containsAny(msg, "not found", "missing")
		},
		Rewrite: func(prompt, rag string) (string, string) {
			return prompt + "\n\nRequirement: use fully-qualified, versioned import paths for every external library (e.g. `@openzeppelin/contracts@5.x/...`).", rag
		},
	},
	{
		Tag: workflowcontext.ErrorTypeVariableShadowing,
		Detector: func(msg string) bool {
			return containsAny(msg, "shadow", "shadows")
		},
		Rewrite: func(prompt, rag string) (string, string) {
			return prompt + "\n\nNaming rule: constructor and function parameter names must not equal any state-variable name.", rag
		},
	},
}

func containsAll(msg string, needles ...string) bool {
	lower := strings.ToLower(msg)
	for _, n := range needles {
		if !strings.Contains(lower, n) {
			return false
		}
	}
	return true
}

func containsAny(msg string, needles ...string) bool {
	lower := strings.ToLower(msg)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func joinNonEmpty(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// classifyContractType guesses a contract category from keywords in
// the prompt, used by the unknown_contract_type rewriter.
func classifyContractType(prompt string) workflowcontext.ContractCategory {
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

// DetectErrorPattern classifies message into a known tag, or returns
// ("", false) if nothing matches.
func DetectErrorPattern(message string) (workflowcontext.ErrorType, bool) {
	for _, p := range patterns {
		if p.Detector(message) {
			return p.Tag, true
		}
	}
	return "", false
}

// SuccessfulFixLookup answers the memory-directed repair question:
// given an error type and stage, has this exact failure been fixed
// before, and if so what hint should be appended? Agent Memory
// implements this.
type SuccessfulFixLookup interface {
	GetSuccessfulFixesForError(errorType workflowcontext.ErrorType, stage workflowcontext.StageName) []string
}

// Result is the outcome of a repair attempt.
type Result struct {
	Prompt     string
	RAGContext string
	Repaired   bool
	Tag        workflowcontext.ErrorType
}

// Repairer applies the pattern table and, if memory holds a matching
// successful fix, prefers it by appending its fix message as a hint
// before the pattern rewrite runs.
type Repairer struct {
	memory SuccessfulFixLookup
}

// NewRepairer builds a Repairer. memory may be nil, in which case
// memory-directed repair is skipped.
func NewRepairer(memory SuccessfulFixLookup) *Repairer {
	return &Repairer{memory: memory}
}

// Repair implements the pattern-matching half of the public contract:
// detect_error_pattern + rewrite. It does not call the LLM; see
// RephraseWithLLM for the fallback path.
func (r *Repairer) Repair(prompt, ragContext, errorMessage string, errorType workflowcontext.ErrorType, stage workflowcontext.StageName) Result {
	prompt = r.applyMemoryHint(prompt, errorType, stage)

	tag, ok := DetectErrorPattern(errorMessage)
	if !ok {
		return Result{Prompt: prompt, RAGContext: ragContext, Repaired: false}
	}

	for _, p := range patterns {
		if p.Tag != tag {
			continue
		}
		newPrompt, newRAG := p.Rewrite(prompt, ragContext)
		return Result{Prompt: newPrompt, RAGContext: newRAG, Repaired: true, Tag: tag}
	}
	return Result{Prompt: prompt, RAGContext: ragContext, Repaired: false}
}

// applyMemoryHint prepends no content structurally, but appends the
// most specific remembered fix as a hint, per spec's ordering rule:
// memory-directed repairs take priority over pattern repairs.
func (r *Repairer) applyMemoryHint(prompt string, errorType workflowcontext.ErrorType, stage workflowcontext.StageName) string {
	if r.memory == nil {
		return prompt
	}
	fixes := r.memory.GetSuccessfulFixesForError(errorType, stage)
	if len(fixes) == 0 {
		return prompt
	}
	return prompt + "\n\nHint from a previously successful fix: " + fixes[0]
}

// rephraseMetaPromptTemplate is the meta-prompt sent to the model when no
// pattern matches.
const rephraseMetaPromptTemplate = `The following contract generation request failed with an error that does not match a known pattern. Restate the request more precisely so it is unambiguous: include an explicit Solidity pragma version, the contract type (ERC20, ERC721, DeFi, DAO, or custom), and any library dependencies by name and version.

ORIGINAL REQUEST:
%s

ERROR:
%s

Respond with only the rewritten request text, no explanation.`

// RephraseWithLLM is the LLM rephrase fallback, invoked only when
// Repair returns Repaired=false. It marks the result repaired=true
// only if the model returns a non-empty, non-trivial rewrite;
// anything else leaves the input unchanged.
func RephraseWithLLM(ctx context.Context, router *modelrouter.Router, prompt, ragContext, errorMessage string) (Result, error) {
	metaPrompt := fmt.Sprintf(rephraseMetaPromptTemplate, prompt, errorMessage)

	resp, err := router.Generate(ctx, metaPrompt, modelrouter.SelectionRequest{
		EstimatedInputTokens:  modelrouter.EstimateTokens(metaPrompt),
		EstimatedOutputTokens: modelrouter.EstimateTokens(prompt) * 2,
		TaskType:              "prompt_repair",
		PreferCheap:           true,
	})
	if err != nil {
		return Result{Prompt: prompt, RAGContext: ragContext, Repaired: false}, err
	}

	rewritten := strings.TrimSpace(resp.Content)
	if rewritten == "" || rewritten == prompt {
		return Result{Prompt: prompt, RAGContext: ragContext, Repaired: false}, nil
	}

	return Result{Prompt: rewritten, RAGContext: ragContext, Repaired: true, Tag: workflowcontext.ErrorTypeUnknown}, nil
}
