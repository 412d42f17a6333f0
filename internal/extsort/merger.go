package extsort

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// chunkReader holds one chunk file, its current line, and whether it is
// exhausted.
type chunkReader struct {
	path    string
	file    *os.File
	lines   *LineReader
	current string
	eof     bool
}

func (r *chunkReader) advance(logger *zap.Logger) {
	line, err := r.lines.Next()
	if err != nil {
		if err != io.EOF {
			logger.Error("read chunk failed; skipping remainder", zap.String("path", r.path), zap.Error(err))
		}
		r.current = ""
		r.eof = true
		return
	}
	r.current = line
}

// Merge combines sorted chunk files into outputPath. A single chunk is copied
// verbatim and no chunks yields an empty output.
func (s *Sorter) Merge(chunks []string, outputPath string) {
	switch len(chunks) {
	case 0:
		s.logger.Warn("no chunks to merge; writing empty output", zap.String("output", outputPath))
		if err := writeEmpty(outputPath); err != nil {
			s.logger.Error("create sort output failed", zap.String("output", outputPath), zap.Error(err))
		}
	case 1:
		if err := copyFile(chunks[0], outputPath); err != nil {
			s.logger.Error("copy single chunk failed", zap.String("output", outputPath), zap.Error(err))
		}
	default:
		if err := s.mergeChunks(chunks, outputPath); err != nil {
			s.logger.Error("merge chunks failed", zap.String("output", outputPath), zap.Error(err))
		}
	}
}

func (s *Sorter) mergeChunks(chunks []string, outputPath string) (err error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create sort output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sort output: %w", cerr)
		}
	}()

	readers := make([]*chunkReader, 0, len(chunks))
	defer func() {
		for _, r := range readers {
			if cerr := r.file.Close(); cerr != nil {
				s.logger.Warn("close chunk failed", zap.String("path", r.path), zap.Error(cerr))
			}
		}
	}()
	for _, path := range chunks {
		f, openErr := os.Open(path)
		if openErr != nil {
			s.logger.Error("open chunk failed; skipping", zap.String("path", path), zap.Error(openErr))
			continue
		}
		r := &chunkReader{path: path, file: f, lines: NewLineReader(f)}
		r.advance(s.logger)
		readers = append(readers, r)
	}

	w := bufio.NewWriterSize(out, writeBufSize)
	for {
		candidate, ok := lowestLine(readers)
		if !ok {
			break
		}
		for _, r := range readers {
			if r.eof || r.current > candidate {
				continue
			}
			if err := writeLine(w, candidate); err != nil {
				return err
			}
			candidate = r.current
			r.advance(s.logger)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush sort output: %w", err)
	}
	return nil
}

// lowestLine returns the smallest current line among readers that are not
// exhausted. Ties go to the first reader scanned.
func lowestLine(readers []*chunkReader) (string, bool) {
	var (
		lowest string
		found  bool
	)
	for _, r := range readers {
		if r.eof {
			continue
		}
		if !found || r.current < lowest {
			lowest = r.current
			found = true
		}
	}
	return lowest, found
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return fmt.Errorf("write sort output: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write sort output: %w", err)
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open chunk: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create sort output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sort output: %w", cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy chunk: %w", err)
	}
	return nil
}

func writeEmpty(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
