package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalk_IncludesOnlyMatchingGlobsAndExcludesVCSDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "doc.md"), "# hi")
	writeFile(t, filepath.Join(root, "notes.txt"), "plain")
	writeFile(t, filepath.Join(root, "sub", "nested.md"), "# nested")
	writeFile(t, filepath.Join(root, ".git", "config"), "ignored")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "readme.md"), "ignored")

	files, err := Walk(root, Options{})
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.Contains(t, paths, "doc.md")
	assert.Contains(t, paths, "sub/nested.md")
	assert.NotContains(t, paths, "notes.txt")
	assert.NotContains(t, paths, ".git/config")
	assert.NotContains(t, paths, "node_modules/pkg/readme.md")
}

func TestWalk_CustomIncludeGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "# a")
	writeFile(t, filepath.Join(root, "b.txt"), "b")

	files, err := Walk(root, Options{IncludeGlobs: []string{"*.txt"}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b.txt", files[0].Path)
}

func TestWalk_ExcludeWinsOverInclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".tmp", "draft.md"), "# draft")
	writeFile(t, filepath.Join(root, "final.md"), "# final")

	files, err := Walk(root, Options{
		IncludeGlobs: []string{"*.md"},
		ExcludeGlobs: []string{"**/.tmp/**"},
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "final.md", files[0].Path)
}

func TestWalk_NonexistentRootReturnsError(t *testing.T) {
	_, err := Walk(filepath.Join(t.TempDir(), "does-not-exist"), Options{})
	assert.Error(t, err)
}

func TestGitFingerprint_NonGitDirectoryReportsNotOK(t *testing.T) {
	root := t.TempDir()
	_, ok := GitFingerprint(root)
	assert.False(t, ok)
}

func TestGitFingerprint_ResolvesHEADRef(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(root, ".git", "refs", "heads", "main"), "deadbeefcafef00d\n")

	fp, ok := GitFingerprint(root)
	require.True(t, ok)
	assert.Equal(t, "deadbeefcafef00d", fp)
}

func TestGitFingerprint_DetachedHEADUsesCommitDirectly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "abc123\n")

	fp, ok := GitFingerprint(root)
	require.True(t, ok)
	assert.Equal(t, "abc123", fp)
}
