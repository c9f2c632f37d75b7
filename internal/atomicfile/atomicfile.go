// Package atomicfile provides the write-then-rename primitive used by every
// JSON store in this module (workflow contexts, agent memory, model
// performance, the two CID registries). A reader can never observe a
// partially written file: os.Rename is atomic within a single filesystem,
// so a concurrent Read either sees the old content or the new content, never
// a torn mix of both.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile writes already encoded bytes (marshaling is the caller's job)
// to path atomically: it writes to a temp file in the same
// directory (so the rename is same-filesystem and therefore atomic), fsyncs
// it, then renames over path.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Best-effort cleanup if anything below fails before the rename.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("atomicfile: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("atomicfile: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicfile: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("atomicfile: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomicfile: rename into place: %w", err)
	}

	succeeded = true
	return nil
}

// ReadFile reads a file written by WriteFile. It exists purely for symmetry
// and so callers don't need a second import for the common os.ReadFile case.
func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
