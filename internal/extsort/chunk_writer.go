package extsort

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/toprgb/internal/metrics"
)

// chunk is one sorted run being persisted by the pool.
type chunk struct {
	path string
	err  error
}

// BreakDownFile splits inputPath into sorted chunk files and returns their
// paths in creation order. The caller owns the files.
func (s *Sorter) BreakDownFile(inputPath string) []string {
	paths, _ := s.breakDown(inputPath)
	return paths
}

// estimateBytes assumes two bytes per UTF-16 code unit. It deliberately
// overestimates the in-memory footprint of ASCII input.
func estimateBytes(line string) int64 {
	var units int64
	for _, r := range line {
		if r > 0xffff {
			units += 2
		} else {
			units++
		}
	}
	return units * 2
}

func (s *Sorter) breakDown(inputPath string) ([]string, int64) {
	in, err := os.Open(inputPath)
	if err != nil {
		s.logger.Error("open sort input failed", zap.String("input", inputPath), zap.Error(err))
		return nil, 0
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			s.logger.Warn("close sort input failed", zap.Error(cerr))
		}
	}()

	var (
		group    errgroup.Group
		chunks   []*chunk
		buf      []string
		estimate int64
		lines    int64
		readErr  error
	)
	group.SetLimit(s.workers)

	reader := NewLineReader(in)
	for {
		line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		lines++

		size := estimateBytes(line)
		estimate += size
		if estimate < s.chunkSize {
			buf = append(buf, line)
			continue
		}
		chunks = s.submitChunk(&group, chunks, buf)
		buf = []string{line}
		estimate = size
	}

	switch {
	case readErr != nil:
		s.logger.Error("read sort input failed; dropping in-progress chunk",
			zap.String("input", inputPath),
			zap.Int("dropped_lines", len(buf)),
			zap.Error(readErr),
		)
	case estimate < s.chunkSize:
		chunks = s.submitChunk(&group, chunks, buf)
	case len(buf) > 0:
		s.logger.Warn("final chunk at or above chunk size dropped",
			zap.Int("dropped_lines", len(buf)),
			zap.Int64("estimate", estimate),
			zap.Int64("chunk_size", s.chunkSize),
		)
	}
	s.logger.Debug("lines read from sort input", zap.Int64("lines", lines))

	s.logger.Info("waiting for chunk sorts to finish", zap.Int("chunks", len(chunks)))
	// Chunk tasks record their own errors; Wait only provides the barrier.
	_ = group.Wait()

	paths := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.err != nil {
			s.logger.Error("chunk skipped", zap.String("path", c.path), zap.Error(c.err))
			if rmErr := os.Remove(c.path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.logger.Warn("remove failed chunk", zap.String("path", c.path), zap.Error(rmErr))
			}
			continue
		}
		paths = append(paths, c.path)
	}
	return paths, lines
}

// submitChunk reserves the chunk's temp file in order and hands the sort and
// write to the pool. It blocks while the pool is saturated.
func (s *Sorter) submitChunk(group *errgroup.Group, chunks []*chunk, lines []string) []*chunk {
	if len(lines) == 0 {
		return chunks
	}
	f, err := s.createTemp(chunkFilePattern)
	if err != nil {
		s.logger.Error("chunk skipped", zap.Int("lines", len(lines)), zap.Error(err))
		return chunks
	}
	c := &chunk{path: f.Name()}
	chunks = append(chunks, c)
	if len(chunks)%10 == 0 {
		s.logger.Debug("chunks created", zap.Int("chunks", len(chunks)))
	}
	metrics.ObserveSortChunk(len(lines))

	group.Go(func() error {
		c.err = writeSortedChunk(f, lines)
		return nil
	})
	return chunks
}

func writeSortedChunk(f *os.File, lines []string) (err error) {
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close chunk %s: %w", f.Name(), cerr)
		}
	}()

	slices.Sort(lines)
	w := bufio.NewWriterSize(f, writeBufSize)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("write chunk %s: %w", f.Name(), err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write chunk %s: %w", f.Name(), err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush chunk %s: %w", f.Name(), err)
	}
	return nil
}
