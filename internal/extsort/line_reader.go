package extsort

import (
	"bufio"
	"io"
	"strings"
)

const readBufSize = 64 * 1024

// LineReader yields lines without their terminator. Both "\n" and "\r\n"
// endings are accepted and a final line without a newline is still returned.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, readBufSize)}
}

// Next returns the next line or io.EOF once the input is exhausted.
func (l *LineReader) Next() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return trimEOL(line), nil
		}
		return "", err
	}
	return trimEOL(line), nil
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
