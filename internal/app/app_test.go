package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/toprgb/internal/config"
	"github.com/JakeFAU/toprgb/internal/toprgb"
)

func baseConfig(t *testing.T, dir string) config.Config {
	t.Helper()
	input := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(input, []byte("ftp://example.com/a.png\nnot a url\n"), 0o600))
	return config.Config{
		Input:        input,
		Output:       filepath.Join(dir, "toprgb.csv"),
		Threads:      2,
		ChunkSize:    1 << 20,
		DrainTimeout: 10 * time.Second,
		Sort:         config.SortConfig{TempDir: dir},
		HTTP:         config.HTTPConfig{TimeoutSeconds: 1, MaxRetries: 1},
		Storage:      config.StorageConfig{Backend: "local", LocalDir: filepath.Join(dir, "archive"), Prefix: "runs"},
	}
}

func TestBuildAndRunLocalArchive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	ctx := context.Background()

	a, err := Build(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close(ctx)

	summary, err := a.Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Completed)
	assert.Equal(t, int64(2), summary.Processed)
	assert.Contains(t, summary.ArchiveURI, filepath.Join(dir, "archive", "runs"))

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	assert.Empty(t, data, "unsupported urls produce no rows")
}

func TestBuildRejectsUnwritableArchive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := baseConfig(t, dir)
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.Storage.LocalDir = filepath.Join(blocker, "archive")

	_, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "local blob store init failed")
}

func TestIsIncomplete(t *testing.T) {
	t.Parallel()
	assert.True(t, IsIncomplete(fmt.Errorf("run pipeline: %w", toprgb.ErrInterrupted)))
	assert.True(t, IsIncomplete(toprgb.ErrDrainTimeout))
	assert.False(t, IsIncomplete(errors.New("close output: disk full")))
}
