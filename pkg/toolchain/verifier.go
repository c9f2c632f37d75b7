package toolchain

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/contractforge/forge/internal/corelog"
)

// ExplorerVerifier submits source code to a block explorer via Foundry's
// `forge verify-contract`, bounded by WebhookTimeout since it is, like the
// escalation webhook, an outbound call to a third party that must never
// hang the workflow.
type ExplorerVerifier struct {
	APIKey string
	Logger corelog.Logger
}

// NewExplorerVerifier builds an ExplorerVerifier using apiKey for the
// target block explorer (Etherscan-compatible).
func NewExplorerVerifier(apiKey string, logger corelog.Logger) *ExplorerVerifier {
	if logger == nil {
		logger = corelog.NoOp{}
	}
	return &ExplorerVerifier{APIKey: apiKey, Logger: logger}
}

// Verify shells out to `forge verify-contract` and never retries — the
// orchestrator's escalation/retry loop owns that decision.
func (v *ExplorerVerifier) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, WebhookTimeout)
	defer cancel()

	args := []string{"verify-contract", req.Address, req.Source, "--etherscan-api-key", v.APIKey}
	if req.ChainID != 0 {
		args = append(args, "--chain", strconv.FormatInt(req.ChainID, 10))
	}
	if len(req.ConstructorArgs) > 0 {
		args = append(args, "--constructor-args", strings.Join(req.ConstructorArgs, ","))
	}

	cmd := exec.CommandContext(ctx, "forge", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	combined := stdout.String() + stderr.String()
	if err != nil {
		return VerifyResult{Verified: false, Details: combined}, nil
	}

	verified := strings.Contains(strings.ToLower(combined), "pass") || strings.Contains(strings.ToLower(combined), "already verified")
	return VerifyResult{Verified: verified, Details: combined}, nil
}

