package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestFormatRow(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "http://i/a.png,#ffffff,#000000,#ff0000\n",
		FormatRow("http://i/a.png", []string{"#ffffff", "#000000", "#ff0000"}))
	assert.Equal(t, "http://i/b.png,#ffffff\n", FormatRow("http://i/b.png", []string{"#ffffff"}))
	assert.Equal(t, "http://i/c.png,\n", FormatRow("http://i/c.png", nil))
}

func TestOpenDoesNotClobber(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "toprgb.csv")
	require.NoError(t, os.WriteFile(path, []byte("keep\n"), 0o600))

	clock := fixedClock{now: time.UnixMilli(1700000000123)}
	sink, err := Open(path, clock)
	require.NoError(t, err)
	assert.Equal(t, path+"_1700000000123", sink.Path())
	require.NoError(t, sink.WriteRow("u,#000000\n"))
	require.NoError(t, sink.Close())

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep\n", string(original))
	written, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	assert.Equal(t, "u,#000000\n", string(written))
}

func TestConcurrentRowsStayIntact(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := Open(path, fixedClock{now: time.Now()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row := FormatRow(fmt.Sprintf("http://img/%d.png", i), []string{"#111111", "#222222", "#333333"})
			assert.NoError(t, sink.WriteRow(row))
		}()
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		assert.Len(t, strings.Split(line, ","), 4, line)
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	t.Parallel()
	sink, err := Open(filepath.Join(t.TempDir(), "out.csv"), fixedClock{now: time.Now()})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Error(t, sink.WriteRow("x,\n"))
}

func TestRowsUnflushedUntilFlush(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := Open(path, fixedClock{now: time.Now()})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.WriteRow("a,#000000\n"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	require.NoError(t, sink.Flush())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,#000000\n", string(data))
}
