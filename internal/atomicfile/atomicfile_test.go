package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileCreatesDirAndContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")

	require.NoError(t, WriteFile(path, []byte(`{"a":1}`), 0o644))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(got))
}

func TestWriteFileOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	require.NoError(t, WriteFile(path, []byte(`{"v":1}`), 0o644))
	require.NoError(t, WriteFile(path, []byte(`{"v":2}`), 0o644))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp files after a successful write")
}

func TestWriteFileLeavesNoTempOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, WriteFile(path, []byte("x"), 0o644))

	matches, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}
