package fs_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/internal/adapters/fs"
	"go.trai.ch/compak/internal/core/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWalker_WalkFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "config"), "git config")
	writeFile(t, filepath.Join(root, "ignored", "file"), "ignored")
	writeFile(t, filepath.Join(root, "src", "compose.yaml"), "services: {}")
	writeFile(t, filepath.Join(root, "README.md"), "readme")
	writeFile(t, filepath.Join(root, "notes.tmp"), "tmp")

	files := slices.Collect(fs.NewWalker().WalkFiles(root, []string{"ignored", "*.tmp"}))

	assert.Equal(t, []string{"README.md", "src/compose.yaml"}, files)
}

func TestWalker_WalkFiles_StopsEarly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "a")
	writeFile(t, filepath.Join(root, "b"), "b")

	var seen []string
	for f := range fs.NewWalker().WalkFiles(root, nil) {
		seen = append(seen, f)
		break
	}
	assert.Equal(t, []string{"a"}, seen)
}

func TestHasher_HashFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file")
	writeFile(t, path, "content")

	h := fs.NewHasher()
	got, err := h.HashFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 16)
	assert.Equal(t, h.HashBytes([]byte("content")), got)

	_, err = h.HashFile(filepath.Join(root, "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerifier_Drift(t *testing.T) {
	root := t.TempDir()
	h := fs.NewHasher()

	writeFile(t, filepath.Join(root, ".compak/packages/net/compose.yaml"), "services: {}")
	writeFile(t, filepath.Join(root, ".compak/packages/net/.env"), "A=1\n")

	lock := domain.NewLockfile()
	lock.Put(domain.LockEntry{
		ID:      "net",
		Version: domain.MustParseVersion("2.5.0"),
		Files: []domain.InstalledFile{
			{Path: ".compak/packages/net/.env", Hash: h.HashBytes([]byte("A=2\n"))},
			{Path: ".compak/packages/net/compose.yaml", Hash: h.HashBytes([]byte("services: {}"))},
			{Path: ".compak/packages/net/gone", Hash: h.HashBytes([]byte("x"))},
			{Path: "compose.compak.yaml", Hash: "ignored", Region: true},
		},
	})

	drift, err := fs.NewVerifier(h).Drift(root, lock)
	require.NoError(t, err)
	assert.Equal(t, []domain.Drift{
		{Package: "net", Path: ".compak/packages/net/.env", Reason: domain.DriftModified},
		{Package: "net", Path: ".compak/packages/net/gone", Reason: domain.DriftMissing},
	}, drift)
}

func TestWriteFileAtomic(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nested", "compak.lock")

	require.NoError(t, fs.WriteFileAtomic(path, []byte("one"), domain.FilePerm))
	require.NoError(t, fs.WriteFileAtomic(path, []byte("two"), domain.FilePerm))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(domain.FilePerm), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	exists, err := fs.Exists(path)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = fs.Exists(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)
}
