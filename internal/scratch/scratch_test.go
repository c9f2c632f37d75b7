package scratch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesDir(t *testing.T) {
	ws := t.TempDir()
	d, err := Acquire(ws, "wf-1")
	require.NoError(t, err)
	require.DirExists(t, d.Path)
	require.Equal(t, filepath.Join(ws, ".temp_envs", "wf-1"), d.Path)
}

func TestCloseWithoutPreserveRemovesDir(t *testing.T) {
	ws := t.TempDir()
	d, err := Acquire(ws, "wf-2")
	require.NoError(t, err)

	require.NoError(t, d.Close(false))
	require.NoDirExists(t, d.Path)
}

func TestCloseWithPreserveLeavesMarker(t *testing.T) {
	ws := t.TempDir()
	d, err := Acquire(ws, "wf-3")
	require.NoError(t, err)

	require.NoError(t, d.Close(true))
	require.DirExists(t, d.Path)

	marker, err := os.ReadFile(filepath.Join(d.Path, ".preserve_for_debug"))
	require.NoError(t, err)
	require.Equal(t, "wf-3\n", string(marker))
}
