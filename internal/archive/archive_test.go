package archive

import (
	"archive/zip"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOutputs(t *testing.T) (root string, a *Archiver) {
	t.Helper()
	root = t.TempDir()
	contents := filepath.Join(root, "contents")
	require.NoError(t, os.MkdirAll(filepath.Join(contents, "charts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(contents, "report.txt"), []byte("summary"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(contents, "charts", "views.html"), []byte("<html></html>"), 0o644))

	return root, New(root, filepath.Join(t.TempDir(), "zips"), []string{"contents", "comments"})
}

func TestCompress(t *testing.T) {
	_, a := setupOutputs(t)

	arc, err := a.Compress("contents")
	require.NoError(t, err)
	assert.Equal(t, "contents.zip", arc.Name)
	assert.Equal(t, 2, arc.Files)
	assert.Positive(t, arc.Size)
	assert.NotEmpty(t, arc.HumanSize)

	zr, err := zip.OpenReader(arc.Path)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"contents/charts/views.html", "contents/report.txt"}, names)
}

func TestCompress_LeavesNoTempFiles(t *testing.T) {
	_, a := setupOutputs(t)

	_, err := a.Compress("contents")
	require.NoError(t, err)

	entries, err := os.ReadDir(a.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "contents.zip", entries[0].Name())
}

func TestCompress_Errors(t *testing.T) {
	_, a := setupOutputs(t)

	_, err := a.Compress("secrets")
	assert.ErrorIs(t, err, ErrUnknownFolder)

	_, err = a.Compress("comments")
	assert.ErrorIs(t, err, ErrFolderMissing)
}

func TestListAndLookup(t *testing.T) {
	_, a := setupOutputs(t)

	list, err := a.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = a.Compress("contents")
	require.NoError(t, err)

	list, err = a.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "contents", list[0].Folder)

	arc, err := a.Lookup("contents.zip")
	require.NoError(t, err)
	assert.Equal(t, list[0].Path, arc.Path)

	_, err = a.Lookup("comments.zip")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = a.Lookup("../etc/passwd")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCleanup(t *testing.T) {
	_, a := setupOutputs(t)

	arc, err := a.Compress("contents")
	require.NoError(t, err)

	deleted, err := a.Cleanup(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted, "fresh archive should be kept")

	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(arc.Path, old, old))

	deleted, err = a.Cleanup(7 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = os.Stat(arc.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
