package toolchain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiresDeploymentVetoOnHighOrCriticalSeverity(t *testing.T) {
	require.True(t, RequiresDeploymentVeto(AuditResult{Severity: SeverityHigh}, false))
	require.True(t, RequiresDeploymentVeto(AuditResult{Severity: SeverityCritical}, false))
	require.False(t, RequiresDeploymentVeto(AuditResult{Severity: SeverityMedium}, false))
	require.False(t, RequiresDeploymentVeto(AuditResult{Severity: SeverityLow}, false))
}

func TestRequiresDeploymentVetoHonorsAllowInsecure(t *testing.T) {
	require.False(t, RequiresDeploymentVeto(AuditResult{Severity: SeverityCritical}, true))
}

func TestValidateConstructorArgsRejectsMalformedAddress(t *testing.T) {
	err := validateConstructorArgs("", []string{"0xNOTHEX0000000000000000000000000000000000"})
	require.Error(t, err)
}

func TestValidateConstructorArgsAcceptsWellFormedAddress(t *testing.T) {
	err := validateConstructorArgs("", []string{"0x1234567890123456789012345678901234567890", "1000"})
	require.NoError(t, err)
}

func TestValidateConstructorArgsRejectsWrongCountAgainstABI(t *testing.T) {
	abi := `[{"type":"constructor","inputs":[{"type":"address"},{"type":"uint256"}]}]`
	err := validateConstructorArgs(abi, []string{"0x1234567890123456789012345678901234567890"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "expects 2 argument")
}

func TestValidateConstructorArgsRejectsWrongTypeAgainstABI(t *testing.T) {
	abi := `[{"type":"constructor","inputs":[{"type":"address"},{"type":"uint256"}]}]`
	err := validateConstructorArgs(abi, []string{"0x1234567890123456789012345678901234567890", "not-a-number"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "constructor arg 1")
}

func TestValidateConstructorArgsAcceptsMatchingABI(t *testing.T) {
	abi := `[{"type":"constructor","inputs":[{"type":"address"},{"type":"uint256"},{"type":"bool"}]}]`
	err := validateConstructorArgs(abi, []string{"0x1234567890123456789012345678901234567890", "1000", "true"})
	require.NoError(t, err)
}

func TestValidateConstructorArgsWithNoConstructorInABIFallsBackToShapeOnly(t *testing.T) {
	abi := `[{"type":"function","inputs":[]}]`
	err := validateConstructorArgs(abi, []string{"anything", "goes"})
	require.NoError(t, err)
}

func TestClassifyDeployFailureBucketsKnownSignatures(t *testing.T) {
	cases := []struct {
		stderr string
		class  DeployErrorClass
	}{
		{"Error: insufficient funds for gas * price + value", DeployErrorInsufficientFunds},
		{"Error: out of gas", DeployErrorGas},
		{"execution reverted: Ownable: caller is not the owner", DeployErrorRevert},
		{"dial tcp: connection refused", DeployErrorRPC},
		{"something unrelated happened", DeployErrorUnknown},
	}
	for _, c := range cases {
		got := classifyDeployFailure(c.stderr, nil)
		require.Equal(t, c.class, got.Class, c.stderr)
	}
}

func TestDeployErrorFormatsClassAndMessage(t *testing.T) {
	err := &DeployError{Class: DeployErrorGas, Message: "out of gas"}
	require.Equal(t, "gas: out of gas", err.Error())
}

func TestExtractPackageImportsDedupesAndSkipsRelative(t *testing.T) {
	source := `
pragma solidity ^0.8.20;
import "./Helper.sol";
import "@openzeppelin/contracts/token/ERC20/ERC20.sol";
import "@openzeppelin/contracts/access/Ownable.sol";
import "solmate/tokens/ERC721.sol";
`
	packages := extractPackageImports(source)
	require.Equal(t, []string{"@openzeppelin/contracts", "solmate"}, packages)
}

func TestLibDirNameUsesLastPathSegment(t *testing.T) {
	require.Equal(t, "contracts", libDirName("@openzeppelin/contracts"))
	require.Equal(t, "solmate", libDirName("solmate"))
}

func TestSeverityRankOrdersClosedEnum(t *testing.T) {
	require.True(t, severityRank(SeverityCritical) > severityRank(SeverityHigh))
	require.True(t, severityRank(SeverityHigh) > severityRank(SeverityMedium))
	require.True(t, severityRank(SeverityMedium) > severityRank(SeverityLow))
	require.True(t, severityRank(SeverityLow) > severityRank(SeverityNone))
}
