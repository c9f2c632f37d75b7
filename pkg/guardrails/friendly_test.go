package guardrails

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contractforge/forge/internal/workflowcontext"
)

func TestExplainOrdersStageAdviceBeforeErrorTypeAdvice(t *testing.T) {
	result := Explain(workflowcontext.StageCompilation, "missing pragma", workflowcontext.ErrorTypeMissingPragma)
	require.NotEmpty(t, result.Suggestions)
	require.Equal(t, stageAdvice[workflowcontext.StageCompilation][0], result.Suggestions[0])
	require.Contains(t, result.Suggestions, errorTypeAdvice[workflowcontext.ErrorTypeMissingPragma][0])
}

func TestExplainFallsBackToDefaultHelpText(t *testing.T) {
	result := Explain(workflowcontext.StageInputParsing, "bad input", workflowcontext.ErrorTypeUnknown)
	require.Equal(t, defaultHelpText, result.HelpText)
}

func TestExplainUsesStageSpecificHelpText(t *testing.T) {
	result := Explain(workflowcontext.StageDeployment, "insufficient funds", workflowcontext.ErrorTypeInsufficientFunds)
	require.Equal(t, stageHelpText[workflowcontext.StageDeployment], result.HelpText)
}

func TestExplainInsufficientFundsMessageNamesTheFundingProblem(t *testing.T) {
	result := Explain(workflowcontext.StageDeployment, "insufficient funds for gas * price + value", workflowcontext.ErrorTypeInsufficientFunds)
	require.Contains(t, result.FriendlyMessage, "Deployer account needs more native tokens")
}
