// Package scratch manages the per-workflow temp directories under
// <workspace>/.temp_envs/<workflow_id>/. Every path this module writes
// during a workflow run is acquired through Dir so that success always
// cleans up and failure always preserves, never the reverse.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
)

const preserveMarker = ".preserve_for_debug"

// Dir is a workflow-scoped scratch directory.
type Dir struct {
	Path       string
	workflowID string
}

// Acquire creates (or reuses) <workspace>/.temp_envs/<workflowID>/ and
// returns a handle. Callers must call Close exactly once when the workflow
// finishes.
func Acquire(workspace, workflowID string) (*Dir, error) {
	path := filepath.Join(workspace, ".temp_envs", workflowID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("scratch: create %s: %w", path, err)
	}
	return &Dir{Path: path, workflowID: workflowID}, nil
}

// Close releases the scratch directory. When preserve is false the entire
// tree is removed. When preserve is true the tree is left on disk with a
// .preserve_for_debug marker file so a human can find it later.
func (d *Dir) Close(preserve bool) error {
	if d == nil {
		return nil
	}
	if !preserve {
		return os.RemoveAll(d.Path)
	}
	marker := filepath.Join(d.Path, preserveMarker)
	return os.WriteFile(marker, []byte(d.workflowID+"\n"), 0o644)
}
