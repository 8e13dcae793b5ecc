package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/osmdbt-courier/internal/domain/replication"
)

func TestStoreReadWrite(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.txt")

	require.NoError(t, store.WriteFile(path, []byte("sequenceNumber=665\n")))

	text, err := store.ReadFileText(path)
	require.NoError(t, err)
	assert.Equal(t, "sequenceNumber=665\n", text)

	require.NoError(t, store.AppendText(path, "extra=1\n"))

	data, err := store.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sequenceNumber=665\nextra=1\n", string(data))
}

func TestMkdirAllIdempotent(t *testing.T) {
	store := NewStore()
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, store.MkdirAll(dir))
	require.NoError(t, store.MkdirAll(dir))
}

func TestReadDirAndUnlink(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()

	require.NoError(t, store.WriteFile(filepath.Join(dir, "one.log"), []byte("1")))
	require.NoError(t, store.WriteFile(filepath.Join(dir, "two.log.done"), []byte("2")))

	names, err := store.ReadDir(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one.log", "two.log.done"}, names)

	for _, name := range names {
		require.NoError(t, store.Unlink(filepath.Join(dir, name)))
	}

	names, err = store.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRename(t *testing.T) {
	store := NewStore()
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "log-a.log.done")
	newPath := filepath.Join(dir, "log-a.log")

	require.NoError(t, store.WriteFile(oldPath, []byte("x")))
	require.NoError(t, store.Rename(oldPath, newPath))

	text, err := store.ReadFileText(newPath)
	require.NoError(t, err)
	assert.Equal(t, "x", text)

	_, err = store.ReadFile(oldPath)
	require.Error(t, err)
}

func TestFailuresAreTagged(t *testing.T) {
	store := NewStore()
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := store.ReadFile(missing)
	require.Error(t, err)
	assert.Equal(t, replication.KindFS, replication.KindOf(err))

	_, err = store.ReadDir(missing)
	require.Error(t, err)
	assert.Equal(t, replication.KindFS, replication.KindOf(err))

	err = store.Unlink(missing)
	require.Error(t, err)
	assert.Equal(t, replication.KindFS, replication.KindOf(err))
}
