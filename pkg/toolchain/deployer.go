package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/contractforge/forge/internal/corelog"
)

var (
	hexAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	uintDigitsRe = regexp.MustCompile(`^[0-9]+$`)
	intDigitsRe  = regexp.MustCompile(`^-?[0-9]+$`)
)

// abiConstructorInput is one entry of a constructor's "inputs" array in a
// Solidity compiler's JSON ABI.
type abiConstructorInput struct {
	Type string `json:"type"`
}

type abiEntry struct {
	Type   string                `json:"type"`
	Inputs []abiConstructorInput `json:"inputs"`
}

// constructorInputs finds the constructor entry in abiJSON and returns
// its declared inputs. An empty abiJSON, or one with no constructor
// entry, returns (nil, nil) — the caller falls back to shape-only
// validation, since not every compiled artifact carries ABI metadata.
// abiJSON that is not valid JSON returns an error.
func constructorInputs(abiJSON string) ([]abiConstructorInput, error) {
	if strings.TrimSpace(abiJSON) == "" {
		return nil, nil
	}
	var entries []abiEntry
	if err := json.Unmarshal([]byte(abiJSON), &entries); err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	for _, e := range entries {
		if e.Type == "constructor" {
			return e.Inputs, nil
		}
	}
	return nil, nil
}

// CastDeployer broadcasts a deployment transaction with Foundry's `cast
// send --create`, then classifies the failure mode when the broadcast
// itself is rejected. It validates constructor arguments before ever
// shelling out, so a malformed argument never costs an RPC round trip.
type CastDeployer struct {
	Logger corelog.Logger
}

// NewCastDeployer builds a CastDeployer.
func NewCastDeployer(logger corelog.Logger) *CastDeployer {
	if logger == nil {
		logger = corelog.NoOp{}
	}
	return &CastDeployer{Logger: logger}
}

// validateConstructorArgs enforces argument count and per-argument type
// against abiJSON's constructor entry before broadcast. When abiJSON
// carries no constructor (or none at all), it falls back to validating
// only the shape of address-looking arguments.
func validateConstructorArgs(abiJSON string, args []string) error {
	inputs, err := constructorInputs(abiJSON)
	if err != nil {
		return fmt.Errorf("constructor args: %w", err)
	}
	if inputs != nil && len(args) != len(inputs) {
		return fmt.Errorf("constructor expects %d argument(s), got %d", len(inputs), len(args))
	}

	for i, arg := range args {
		var argType string
		if inputs != nil {
			argType = inputs[i].Type
		}
		if err := validateConstructorArgType(argType, arg); err != nil {
			return fmt.Errorf("constructor arg %d: %w", i, err)
		}
	}
	return nil
}

// validateConstructorArgType checks one constructor argument against its
// declared Solidity ABI type. An empty argType means no ABI was
// available, so only address-shaped values get checked.
func validateConstructorArgType(argType, arg string) error {
	switch {
	case argType == "address", argType == "" && strings.HasPrefix(arg, "0x") && len(arg) == 42:
		if !hexAddressRe.MatchString(arg) {
			return fmt.Errorf("malformed address: %q", arg)
		}
	case strings.HasPrefix(argType, "uint"):
		if !uintDigitsRe.MatchString(arg) {
			return fmt.Errorf("expected unsigned integer for %s, got %q", argType, arg)
		}
	case strings.HasPrefix(argType, "int"):
		if !intDigitsRe.MatchString(arg) {
			return fmt.Errorf("expected integer for %s, got %q", argType, arg)
		}
	case argType == "bool":
		if arg != "true" && arg != "false" {
			return fmt.Errorf("expected bool for %s, got %q", argType, arg)
		}
	}
	return nil
}

// Deploy validates req's constructor arguments, then broadcasts the
// deployment via `cast send --create`, bounded by the caller's context.
func (d *CastDeployer) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	if err := validateConstructorArgs(req.ABI, req.ConstructorArgs); err != nil {
		return nil, &DeployError{Class: DeployErrorUnknown, Message: err.Error()}
	}

	args := []string{"send", "--create", req.Source,
		"--rpc-url", req.RPCURL,
		"--private-key", req.PrivateKey,
		"--json",
	}
	if req.ChainID != 0 {
		args = append(args, "--chain", fmt.Sprintf("%d", req.ChainID))
	}
	args = append(args, "--constructor-args")
	args = append(args, req.ConstructorArgs...)

	cmd := exec.CommandContext(ctx, "cast", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, classifyDeployFailure(stderr.String(), err)
	}

	var parsed struct {
		ContractAddress string `json:"contractAddress"`
		TransactionHash string `json:"transactionHash"`
		GasUsed         string `json:"gasUsed"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return nil, &DeployError{Class: DeployErrorUnknown, Message: "unparseable cast output: " + err.Error()}
	}

	var gasUsed uint64
	fmt.Sscanf(parsed.GasUsed, "%d", &gasUsed)

	return &DeployResult{
		Address: parsed.ContractAddress,
		TxHash:  parsed.TransactionHash,
		GasUsed: gasUsed,
	}, nil
}

// classifyDeployFailure inspects cast's stderr for well-known failure
// signatures and buckets them into a DeployErrorClass, which the
// orchestrator maps onto the Error Record's error_type.
func classifyDeployFailure(stderr string, cause error) *DeployError {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return &DeployError{Class: DeployErrorInsufficientFunds, Message: stderr}
	case strings.Contains(lower, "out of gas"), strings.Contains(lower, "gas required exceeds"):
		return &DeployError{Class: DeployErrorGas, Message: stderr}
	case strings.Contains(lower, "revert"):
		return &DeployError{Class: DeployErrorRevert, Message: stderr}
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "timed out"), strings.Contains(lower, "no route to host"):
		return &DeployError{Class: DeployErrorRPC, Message: stderr}
	default:
		message := stderr
		if message == "" {
			message = cause.Error()
		}
		return &DeployError{Class: DeployErrorUnknown, Message: message}
	}
}
