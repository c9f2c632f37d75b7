package workflowcontext

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/contractforge/forge/internal/atomicfile"
)

// Save persists the context to <dir>/<workflow_id>.json atomically.
func (c *Context) Save(dir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("workflowcontext: marshal: %w", err)
	}
	path := filepath.Join(dir, c.WorkflowID+".json")
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("workflowcontext: save %s: %w", path, err)
	}
	return nil
}

// Load reads a persisted snapshot back from disk. It returns a Snapshot,
// not a Context, since loaded state is read-only by construction (only the
// Orchestrator that originally owned the workflow may resume writing it).
func Load(dir, workflowID string) (Snapshot, error) {
	path := filepath.Join(dir, workflowID+".json")
	data, err := atomicfile.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("workflowcontext: load %s: %w", path, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("workflowcontext: decode %s: %w", path, err)
	}
	return s, nil
}
