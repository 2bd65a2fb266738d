package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalStoreSaveOpenOverwrite(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	require.NoError(t, store.Save(ctx, "abc12", "docs/readme.md", []byte("first")))
	rc, err := store.Open(ctx, "abc12", "docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "first", readAll(t, rc))

	require.NoError(t, store.Save(ctx, "abc12", "docs/readme.md", []byte("second, longer")))
	rc, err = store.Open(ctx, "abc12", "docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "second, longer", readAll(t, rc))

	entries, err := os.ReadDir(filepath.Join(store.Root(), "abc12", "docs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocalStoreOpenMissing(t *testing.T) {
	store := newLocal(t)

	_, err := store.Open(context.Background(), "abc12", "nope.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)
	require.NoError(t, store.Save(ctx, "abc12", "a.txt", []byte("x")))

	deleted, err := store.Delete(ctx, "abc12", "a.txt")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "abc12", "a.txt")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestLocalStoreDeleteAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)
	require.NoError(t, store.Save(ctx, "abc12", "a.txt", []byte("x")))
	require.NoError(t, store.Save(ctx, "abc12", "nested/b.txt", []byte("y")))
	require.NoError(t, store.Save(ctx, "other", "c.txt", []byte("z")))

	require.NoError(t, store.DeleteAll(ctx, "abc12"))
	require.NoError(t, store.DeleteAll(ctx, "abc12"))

	_, err := os.Stat(filepath.Join(store.Root(), "abc12"))
	assert.True(t, os.IsNotExist(err))

	rc, err := store.Open(ctx, "other", "c.txt")
	require.NoError(t, err)
	assert.Equal(t, "z", readAll(t, rc))
}

func TestLocalStoreFileDirectoryConflict(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	require.NoError(t, store.Save(ctx, "abc12", "docs", []byte("plain file")))
	err := store.Save(ctx, "abc12", "docs/a.md", []byte("nested"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	require.NoError(t, store.Save(ctx, "abc12", "src/main.go", []byte("package main")))
	err = store.Save(ctx, "abc12", "src", []byte("shadow"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	rc, err := store.Open(ctx, "abc12", "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main", readAll(t, rc))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)

	err := store.Save(ctx, "abc12", "../../escape.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = store.ResolvePath("..", "a.txt")
	assert.ErrorIs(t, err, ErrInvalidBucketID)

	assert.ErrorIs(t, store.DeleteAll(ctx, "../.."), ErrInvalidBucketID)
}

func TestLocalStoreResolvePathStaysUnderRoot(t *testing.T) {
	store := newLocal(t)

	full, err := store.ResolvePath("abc12", "dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "abc12", "dir", "file.txt"), full)
}

func TestLocalStorePing(t *testing.T) {
	store := newLocal(t)
	assert.NoError(t, store.Ping(context.Background()))
}
