package repair

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contractforge/forge/internal/workflowcontext"
	"github.com/contractforge/forge/pkg/modelrouter"
)

func TestDetectErrorPatternMatchesInDeclarationOrder(t *testing.T) {
	tag, ok := DetectErrorPattern("compilation error: pragma statement missing from source")
	require.True(t, ok)
	require.Equal(t, workflowcontext.ErrorTypeMissingPragma, tag)
}

func TestDetectErrorPatternNoMatch(t *testing.T) {
	_, ok := DetectErrorPattern("totally unrelated failure")
	require.False(t, ok)
}

func TestRepairAppendsPragmaRequirement(t *testing.T) {
	r := NewRepairer(nil)
	result := r.Repair("write me a token", "", "pragma not found in source", workflowcontext.ErrorTypeMissingPragma, workflowcontext.StageGeneration)
	require.True(t, result.Repaired)
	require.Contains(t, result.Prompt, "pragma solidity")
}

func TestRepairClassifiesUnknownContractType(t *testing.T) {
	r := NewRepairer(nil)
	result := r.Repair("create an NFT collection", "", "unknown contract type requested", workflowcontext.ErrorTypeUnknownContractType, workflowcontext.StageGeneration)
	require.True(t, result.Repaired)
	require.Contains(t, result.Prompt, "ERC721")
}

func TestRepairLeavesPromptUnchangedWhenNoPatternMatches(t *testing.T) {
	r := NewRepairer(nil)
	result := r.Repair("prompt", "", "some unclassifiable issue", workflowcontext.ErrorTypeUnknown, workflowcontext.StageGeneration)
	require.False(t, result.Repaired)
	require.Equal(t, "prompt", result.Prompt)
}

type fakeMemory struct {
	fixes []string
}

func (f fakeMemory) GetSuccessfulFixesForError(errorType workflowcontext.ErrorType, stage workflowcontext.StageName) []string {
	return f.fixes
}

func TestRepairPrefersMemoryHintBeforePattern(t *testing.T) {
	r := NewRepairer(fakeMemory{fixes: []string{"add an explicit license identifier"}})
	result := r.Repair("write me a token", "", "pragma not found in source", workflowcontext.ErrorTypeMissingPragma, workflowcontext.StageGeneration)
	require.Contains(t, result.Prompt, "add an explicit license identifier")
	require.Contains(t, result.Prompt, "pragma solidity")
}

func TestRephraseWithLLMMarksRepairedOnUsableRewrite(t *testing.T) {
	catalog := modelrouter.NewCatalog([]modelrouter.ModelEntry{
		{Name: "claude-haiku", Provider: "anthropic", MaxInputTokens: 50_000, MaxOutputTokens: 4_000, Enabled: true, Priority: 1},
	})
	tracker, err := modelrouter.NewTracker(filepath.Join(t.TempDir(), "tracker.json"))
	require.NoError(t, err)

	router, err := modelrouter.NewRouter(modelrouter.RouterConfig{
		Catalog: catalog,
		Tracker: tracker,
		Factories: map[string]modelrouter.ClientFactory{
			"anthropic": func(model modelrouter.ModelEntry) (modelrouter.Client, error) {
				return rephraseStub{}, nil
			},
		},
	})
	require.NoError(t, err)

	result, err := RephraseWithLLM(context.Background(), router, "write a token", "", "unclassifiable error")
	require.NoError(t, err)
	require.True(t, result.Repaired)
	require.Equal(t, "pragma solidity ^0.8.20; a precise ERC20 token named Example", result.Prompt)
}

type rephraseStub struct{}

func (rephraseStub) GenerateResponse(ctx context.Context, prompt string, options *modelrouter.Options) (*modelrouter.Response, error) {
	return &modelrouter.Response{Content: "pragma solidity ^0.8.20; a precise ERC20 token named Example", Model: options.Model}, nil
}
