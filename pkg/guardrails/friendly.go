package guardrails

import "github.com/contractforge/forge/internal/workflowcontext"

// FriendlyError is the user-facing translation of an internal failure.
type FriendlyError struct {
	FriendlyMessage string
	Suggestions     []string
	HelpText        string
}

var stageAdvice = map[workflowcontext.StageName][]string{
	workflowcontext.StageGeneration:           {"try rephrasing your request with more specific requirements", "mention the contract standard you want (ERC20, ERC721, etc.)"},
	workflowcontext.StageCompilation:          {"check that any pasted code snippets are complete", "avoid referencing contract types we don't recognize"},
	workflowcontext.StageDependencyResolution: {"verify any named library actually exists on the package registry"},
	workflowcontext.StageAudit:                {"review the flagged findings before allowing an insecure deployment"},
	workflowcontext.StageDeployment:           {"confirm the deployer account is funded on the target chain", "check the RPC endpoint is reachable"},
	workflowcontext.StageVerification:         {"double check the constructor arguments match the deployed bytecode"},
}

var errorTypeAdvice = map[workflowcontext.ErrorType][]string{
	workflowcontext.ErrorTypeMissingPragma:       {"add a `pragma solidity` version line at the top of the contract"},
	workflowcontext.ErrorTypeMissingImport:       {"add the missing import statement for the referenced type"},
	workflowcontext.ErrorTypeUnknownContractType: {"describe the contract in terms of a known standard (ERC20, ERC721, DeFi, DAO)"},
	workflowcontext.ErrorTypeInsufficientFunds:   {"add native tokens to the deployer account, then retry"},
	workflowcontext.ErrorTypeGas:                 {"increase the gas limit or simplify the contract"},
	workflowcontext.ErrorTypeRPCTimeout:          {"check the RPC endpoint's availability and try again"},
	workflowcontext.ErrorTypeRevert:              {"inspect the revert reason against the constructor preconditions"},
	workflowcontext.ErrorTypeRateLimit:           {"wait a moment before retrying this deployment"},
	workflowcontext.ErrorTypeAuth:                {"verify the configured API credentials are valid"},
	workflowcontext.ErrorTypeRAGUnavailable:      {"retry once the retrieval service is back; generation falls back to the base prompt meanwhile"},
	workflowcontext.ErrorTypePinFailed:           {"check the pinning service credentials and network access"},
}

var stageHelpText = map[workflowcontext.StageName]string{
	workflowcontext.StageGeneration:           "see docs/generation.md for prompt guidance",
	workflowcontext.StageCompilation:          "see docs/compilation.md for common Solidity compile errors",
	workflowcontext.StageDependencyResolution: "see docs/dependencies.md for supported package sources",
	workflowcontext.StageAudit:                "see docs/audit.md for severity definitions",
	workflowcontext.StageDeployment:           "see docs/deployment.md for funding and RPC setup",
	workflowcontext.StageVerification:         "see docs/verification.md for explorer verification steps",
}

const defaultHelpText = "see docs/troubleshooting.md for general guidance"

// Explain builds a FriendlyError for one (stage, error, error_type) triple.
// Suggestions are ordered stage-specific first, then error-specific, so the
// most broadly applicable advice appears first.
func Explain(stage workflowcontext.StageName, errMessage string, errType workflowcontext.ErrorType) FriendlyError {
	var suggestions []string
	suggestions = append(suggestions, stageAdvice[stage]...)
	suggestions = append(suggestions, errorTypeAdvice[errType]...)

	help := stageHelpText[stage]
	if help == "" {
		help = defaultHelpText
	}

	return FriendlyError{
		FriendlyMessage: friendlyMessageFor(stage, errType, errMessage),
		Suggestions:     suggestions,
		HelpText:        help,
	}
}

func friendlyMessageFor(stage workflowcontext.StageName, errType workflowcontext.ErrorType, errMessage string) string {
	switch errType {
	case workflowcontext.ErrorTypeUnknown, "":
		return "the " + string(stage) + " step failed: " + errMessage
	case workflowcontext.ErrorTypeInsufficientFunds:
		return "Deployer account needs more native tokens: " + errMessage
	default:
		return "the " + string(stage) + " step failed (" + string(errType) + "): " + errMessage
	}
}
