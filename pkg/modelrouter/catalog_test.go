package modelrouter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return NewCatalog([]ModelEntry{
		{Name: "claude-haiku", Provider: "anthropic", Tier: TierLite, MaxInputTokens: 50_000, MaxOutputTokens: 4_000, CostPer1KInput: 0.001, CostPer1KOutput: 0.005, Enabled: true, Priority: 1},
		{Name: "claude-sonnet", Provider: "anthropic", Tier: TierFlash, MaxInputTokens: 200_000, MaxOutputTokens: 8_000, CostPer1KInput: 0.003, CostPer1KOutput: 0.015, Enabled: true, Priority: 2},
		{Name: "claude-opus", Provider: "anthropic", Tier: TierPro, MaxInputTokens: 200_000, MaxOutputTokens: 8_000, CostPer1KInput: 0.015, CostPer1KOutput: 0.075, Enabled: true, Priority: 3},
		{Name: "disabled-model", Provider: "anthropic", Tier: TierLite, MaxInputTokens: 1_000_000, MaxOutputTokens: 1_000_000, Enabled: false, Priority: 0},
	})
}

func TestSelectPrefersLowestPriorityWithinCapacity(t *testing.T) {
	c := testCatalog()
	res, ok := c.Select(SelectionRequest{EstimatedInputTokens: 10_000, EstimatedOutputTokens: 1_000, PreferCheap: true})
	require.True(t, ok)
	require.Equal(t, "claude-haiku", res.Model.Name)
	require.False(t, res.ExceedsLimits)
}

func TestSelectExcludesOverCapacityModels(t *testing.T) {
	c := testCatalog()
	res, ok := c.Select(SelectionRequest{EstimatedInputTokens: 100_000, EstimatedOutputTokens: 1_000})
	require.True(t, ok)
	require.NotEqual(t, "claude-haiku", res.Model.Name)
}

func TestSelectFallsBackToGreatestCapacityWhenNothingFits(t *testing.T) {
	c := testCatalog()
	res, ok := c.Select(SelectionRequest{EstimatedInputTokens: 10_000_000, EstimatedOutputTokens: 1_000_000})
	require.True(t, ok)
	require.True(t, res.ExceedsLimits)
}

func TestSelectIgnoresDisabledModels(t *testing.T) {
	c := testCatalog()
	res, ok := c.Select(SelectionRequest{EstimatedInputTokens: 500, EstimatedOutputTokens: 100})
	require.True(t, ok)
	require.NotEqual(t, "disabled-model", res.Model.Name)
}

func TestEstimateTokensUsesCodeHeuristic(t *testing.T) {
	code := "pragma solidity ^0.8.0; contract Foo { function bar() public {} }"
	prose := "Please write me a token contract with a cap."

	codeTokens := EstimateTokens(code)
	proseTokens := EstimateTokens(prose)

	require.Equal(t, (len(code)+2)/3, codeTokens)
	require.Equal(t, (len(prose)+3)/4, proseTokens)
}
