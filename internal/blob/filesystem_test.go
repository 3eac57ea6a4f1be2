package blob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveDownloadDelete(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	path := ObjectPath("t1", "notes.txt")
	require.NoError(t, store.Save(path, []byte("file body")))

	data, err := store.Download(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("file body"), data)

	require.NoError(t, store.Delete(path))
	_, err = store.Download(path)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDownload_Missing(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	_, err = store.Download("t1/999_missing.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDelete_MissingIsNoop(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete("t1/999_missing.txt"))
}

func TestResolve_RejectsTraversal(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	for _, path := range []string{"../outside.txt", "t1/../../outside.txt"} {
		err := store.Save(path, []byte("x"))
		assert.Error(t, err, "path %s must be rejected", path)
	}
}

func TestObjectPath(t *testing.T) {
	path := ObjectPath("t1", "/tmp/dir/report.pdf")
	assert.True(t, strings.HasPrefix(path, "t1/"))
	assert.True(t, strings.HasSuffix(path, "_report.pdf"), "path %s must keep only the base name", path)
}
