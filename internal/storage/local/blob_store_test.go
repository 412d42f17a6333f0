package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewCreatesMissingDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "runs/r1.csv", "text/csv", strings.NewReader("a,#ffffff\n"))
	require.NoError(t, err)
	want := filepath.Join(dir, "runs", "r1.csv")
	assert.Equal(t, "file://"+want, uri)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "a,#ffffff\n", string(data))

	leftovers, err := filepath.Glob(filepath.Join(dir, "runs", ".upload_*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.csv", "text/csv", strings.NewReader("x"))
	assert.ErrorContains(t, err, "path traversal")
	_, err = store.PutObject(context.Background(), " ", "text/csv", strings.NewReader("x"))
	assert.Error(t, err)
}
