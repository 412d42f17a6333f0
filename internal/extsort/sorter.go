package extsort

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/JakeFAU/toprgb/internal/toprgb"
)

const (
	chunkFilePattern = "toprgb_*_tempchunk"
	writeBufSize     = 64 * 1024
)

// Config controls chunking and the chunk-sort pool.
type Config struct {
	// ChunkSize is the approximate byte budget of one in-memory chunk.
	ChunkSize int64
	// TempDir holds chunk files. Empty uses os.TempDir().
	TempDir string
	// Workers bounds concurrent chunk sorts. Zero uses GOMAXPROCS.
	Workers int
}

// Sorter is an external merge sorter for line-oriented files.
type Sorter struct {
	chunkSize int64
	tempDir   string
	workers   int
	logger    *zap.Logger
}

// New builds a Sorter. The chunk size must be positive.
func New(cfg Config, logger *zap.Logger) (*Sorter, error) {
	if cfg.ChunkSize <= 0 {
		return nil, errors.New("chunk size must be > 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sorter{
		chunkSize: cfg.ChunkSize,
		tempDir:   cfg.TempDir,
		workers:   cfg.Workers,
		logger:    logger,
	}, nil
}

// Sort writes every line of inputPath to outputPath in ascending byte order.
// Chunk files are removed once merged.
func (s *Sorter) Sort(inputPath, outputPath string) toprgb.SortStats {
	start := time.Now()
	s.logger.Info("sort started",
		zap.String("input", inputPath),
		zap.String("chunk_size", humanize.Bytes(uint64(s.chunkSize))),
		zap.Int("workers", s.workers),
	)

	chunks, lines := s.breakDown(inputPath)
	s.Merge(chunks, outputPath)
	s.removeChunks(chunks)

	stats := toprgb.SortStats{
		Lines:    lines,
		Chunks:   len(chunks),
		Duration: time.Since(start),
	}
	s.logger.Info("sort finished",
		zap.String("output", outputPath),
		zap.String("lines", humanize.Comma(stats.Lines)),
		zap.Int("chunks", stats.Chunks),
		zap.Duration("duration", stats.Duration),
	)
	return stats
}

func (s *Sorter) removeChunks(chunks []string) {
	for _, path := range chunks {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove chunk file failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func (s *Sorter) createTemp(pattern string) (*os.File, error) {
	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}
