package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, fsys FileSystem, dir string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "out"), 0o755))

	path := filepath.Join(dir, "out", "a.csv")
	w, err := fsys.Create(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("id,1\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,1\n", string(data))

	info, err := fsys.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.False(t, info.IsDir())

	require.NoError(t, fsys.WriteFile(path, []byte("x"), 0o644))
	data, err = fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	_, err = fsys.ReadFile(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = fsys.Stat(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestOSFileSystem(t *testing.T) {
	exercise(t, OSFileSystem{}, t.TempDir())
}

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()
	exercise(t, m, "/data")

	info, err := m.Stat("/data/out")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, []string{filepath.Clean("/data/out/a.csv")}, m.Names())
}

func TestMemoryFileSystemReadReturnsCopy(t *testing.T) {
	m := NewMemoryFileSystem()
	require.NoError(t, m.WriteFile("f", []byte("abc"), 0o644))
	data, _ := m.ReadFile("f")
	data[0] = 'z'
	again, _ := m.ReadFile("f")
	assert.Equal(t, "abc", string(again))
}
