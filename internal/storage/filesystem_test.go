package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FilesystemStore {
	t.Helper()

	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestUploadOpenStatDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	const path = "planners/p1/executors/e1/death-certificate.pdf"

	written, err := store.Upload(ctx, path, strings.NewReader("certificate bytes"))
	require.NoError(t, err)
	require.Equal(t, int64(len("certificate bytes")), written)

	info, err := store.Stat(ctx, path)
	require.NoError(t, err)
	require.Equal(t, written, info.Size)

	rc, err := store.Open(ctx, path)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "certificate bytes", string(content))

	require.NoError(t, store.Delete(ctx, path))
	_, err = store.Stat(ctx, path)
	require.Error(t, err)

	// Deleting an already-removed object stays quiet.
	require.NoError(t, store.Delete(ctx, path))
}

func TestUploadReplacesExistingObject(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	const path = "planners/p1/executors/e1/death-certificate.pdf"

	_, err := store.Upload(ctx, path, strings.NewReader("first"))
	require.NoError(t, err)
	_, err = store.Upload(ctx, path, strings.NewReader("second"))
	require.NoError(t, err)

	rc, err := store.Open(ctx, path)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "second", string(content))
}

func TestPathTraversalIsRejected(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, path := range []string{
		"../outside.txt",
		"nested/../../outside.txt",
		"/etc/passwd",
		"",
		"   ",
	} {
		_, err := store.Upload(ctx, path, strings.NewReader("x"))
		require.Error(t, err, "path %q", path)

		_, err = store.Open(ctx, path)
		require.Error(t, err, "path %q", path)
	}
}

func TestSanitizeFragment(t *testing.T) {
	require.Equal(t, "death-certificate.pdf", SanitizeFragment("Death Certificate.PDF"))
	require.Equal(t, "file", SanitizeFragment("///"))
	require.Equal(t, "file", SanitizeFragment(""))
	require.Equal(t, "a-b", SanitizeFragment("a/b"))
}
