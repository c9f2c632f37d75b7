// Package workspace validates and creates the on-disk directory layout the
// rest of the module depends on. Directory creation is loud: a permission
// error aborts with a list of fix hints rather than limping along with a
// partially usable workspace.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// requiredDirs enumerates the directories required under a workspace root, per
// the on-disk layout contract.
var requiredDirs = []string{
	".workflow_contexts",
	".temp_envs",
	filepath.Join("logs", "escalations"),
	filepath.Join("artifacts", "workflows"),
	filepath.Join("data", "ipfs_registries"),
}

// Root represents a validated workspace directory.
type Root struct {
	Path string
}

// Prepare creates every required subdirectory under path, loudly. It never
// partially succeeds silently: it attempts every directory, and if any
// could not be created it returns an *Error whose Hints name each
// directory that still needs attention.
func Prepare(path string) (*Root, error) {
	if path == "" {
		return nil, fmt.Errorf("workspace: root path is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &Error{Path: path, Err: err, Hints: []string{
			fmt.Sprintf("create %s by hand and verify the process can write to it", path),
			"run the CLI as a user that owns the workspace directory",
		}}
	}

	var missing []string
	for _, d := range requiredDirs {
		full := filepath.Join(path, d)
		if err := os.MkdirAll(full, 0o755); err != nil {
			missing = append(missing, full)
		}
	}
	if len(missing) > 0 {
		hints := make([]string, 0, len(missing))
		for _, m := range missing {
			hints = append(hints, fmt.Sprintf("mkdir -p %s && chmod 755 %s", m, m))
		}
		return nil, &Error{Path: path, Err: fmt.Errorf("%d required directories could not be created", len(missing)), Hints: hints}
	}

	return &Root{Path: path}, nil
}

// Sub returns the path to a named subdirectory of the workspace, joined
// onto the root path as it was given to Prepare.
func (r *Root) Sub(parts ...string) string {
	return filepath.Join(append([]string{r.Path}, parts...)...)
}

// WorkflowContextsDir returns "<workspace>/.workflow_contexts".
func (r *Root) WorkflowContextsDir() string { return r.Sub(".workflow_contexts") }

// TempEnvsDir returns "<workspace>/.temp_envs".
func (r *Root) TempEnvsDir() string { return r.Sub(".temp_envs") }

// EscalationsDir returns "<workspace>/logs/escalations".
func (r *Root) EscalationsDir() string { return r.Sub("logs", "escalations") }

// ArtifactsDir returns "<workspace>/artifacts/workflows".
func (r *Root) ArtifactsDir() string { return r.Sub("artifacts", "workflows") }

// RegistriesDir returns "<workspace>/data/ipfs_registries".
func (r *Root) RegistriesDir() string { return r.Sub("data", "ipfs_registries") }

// Error is a fail-loud startup error carrying human-actionable hints.
type Error struct {
	Path  string
	Err   error
	Hints []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
