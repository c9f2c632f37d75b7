package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/contractforge/forge/internal/corelog"
)

// FoundryCompiler runs `forge build` against a workspace and reads the
// compiled artifact back out of Foundry's out/ directory. It never retries
// and always respects the caller's context deadline.
type FoundryCompiler struct {
	Logger corelog.Logger
}

// NewFoundryCompiler builds a FoundryCompiler.
func NewFoundryCompiler(logger corelog.Logger) *FoundryCompiler {
	if logger == nil {
		logger = corelog.NoOp{}
	}
	return &FoundryCompiler{Logger: logger}
}

type foundryArtifact struct {
	ABI json.RawMessage `json:"abi"`
	Bytecode struct {
		Object string `json:"object"`
	} `json:"bytecode"`
	Metadata json.RawMessage `json:"rawMetadata"`
}

// Compile shells out to `forge build --force` inside workspaceDir, bounded by
// CompileTimeout regardless of what the caller passes in ctx.
func (c *FoundryCompiler) Compile(ctx context.Context, workspaceDir string) (CompileResult, error) {
	ctx, cancel := context.WithTimeout(ctx, CompileTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "forge", "build", "--force")
	cmd.Dir = workspaceDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	result := CompileResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	if err != nil {
		result.Success = false
		return result, nil
	}
	result.Success = true

	artifact, err := c.newestArtifact(workspaceDir)
	if err != nil {
		return result, fmt.Errorf("toolchain: locate build artifact: %w", err)
	}
	result.Bytecode = artifact.Bytecode.Object
	if artifact.ABI != nil {
		result.ABI = string(artifact.ABI)
	}
	result.Metadata = map[string]string{"source": "forge build"}
	return result, nil
}

// newestArtifact walks out/ for the most recently modified *.json artifact,
// since the workspace may contain more than one contract.
func (c *FoundryCompiler) newestArtifact(workspaceDir string) (*foundryArtifact, error) {
	outDir := filepath.Join(workspaceDir, "out")
	var newestPath string
	var newestMod int64

	err := filepath.WalkDir(outDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if mod := info.ModTime().UnixNano(); mod > newestMod {
			newestMod = mod
			newestPath = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if newestPath == "" {
		return nil, fmt.Errorf("no build artifacts found under %s", outDir)
	}

	data, err := os.ReadFile(newestPath)
	if err != nil {
		return nil, err
	}
	var artifact foundryArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}
