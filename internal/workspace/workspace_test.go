package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrepareCreatesAllRequiredDirs(t *testing.T) {
	base := t.TempDir()
	root, err := Prepare(base)
	require.NoError(t, err)

	require.DirExists(t, root.WorkflowContextsDir())
	require.DirExists(t, root.TempEnvsDir())
	require.DirExists(t, root.EscalationsDir())
	require.DirExists(t, root.ArtifactsDir())
	require.DirExists(t, root.RegistriesDir())
}

func TestPrepareIsIdempotent(t *testing.T) {
	base := t.TempDir()
	_, err := Prepare(base)
	require.NoError(t, err)
	_, err = Prepare(base)
	require.NoError(t, err)
}

func TestPrepareRejectsEmptyPath(t *testing.T) {
	_, err := Prepare("")
	require.Error(t, err)
}

func TestSubJoinsUnderRoot(t *testing.T) {
	base := t.TempDir()
	root, err := Prepare(base)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "a", "b"), root.Sub("a", "b"))
}
