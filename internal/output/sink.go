// Package output writes per-image result rows to a CSV file.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/toprgb/internal/toprgb"
)

// CSVSink appends rows to a buffered file. All methods are safe for
// concurrent use.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// Open creates the sink file. An existing file at path is never truncated:
// the sink is created at "<path>_<unix millis>" instead.
func Open(path string, clock toprgb.Clock) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		path = path + "_" + strconv.FormatInt(clock.Now().UnixMilli(), 10)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("create output %s: %w", path, err)
	}
	return &CSVSink{
		path: path,
		file: f,
		w:    bufio.NewWriterSize(f, 64*1024),
	}, nil
}

// Path returns the file actually written.
func (s *CSVSink) Path() string {
	return s.path
}

// WriteRow appends one formatted row.
func (s *CSVSink) WriteRow(row string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("output sink closed")
	}
	if _, err := s.w.WriteString(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// Flush pushes buffered rows to the file.
func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Subsequent calls are no-ops.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}
	return nil
}

// FormatRow renders "url,#rrggbb,..." with a trailing newline. Missing colors
// leave no empty fields; an image with no colors yields "url,".
func FormatRow(url string, colors []string) string {
	return url + "," + strings.Join(colors, ",") + "\n"
}
