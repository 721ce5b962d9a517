package source_test

import (
	"path/filepath"
	"testing"

	"github.com/c360studio/semsolver/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "anneal.py", "")
	writeFile(t, root, "qaoa/maxcut.py", "")
	writeFile(t, root, "qaoa/notes.md", "")
	writeFile(t, root, ".git/hooks/pre-commit.py", "")
	writeFile(t, root, "qaoa/__pycache__/maxcut.py", "")
	writeFile(t, root, ".venv/lib/site.py", "")

	files, err := source.Glob(root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"anneal.py", filepath.Join("qaoa", "maxcut.py")}, files)

	files, err = source.Glob(root, "qaoa/*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("qaoa", "maxcut.py"), filepath.Join("qaoa", "notes.md")}, files)
}

func TestGlob_InvalidPattern(t *testing.T) {
	_, err := source.Glob(t.TempDir(), "[")
	assert.Error(t, err)
}
