package toprgb

import "errors"

var (
	// ErrUnsupportedScheme is returned for URLs that are neither http(s) nor file.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	// ErrUnsupportedFormat is returned when no registered decoder recognizes the image.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrHTTPStatus marks a non-success HTTP response. It is never retried.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrQueueClosed is returned by Dequeue once the queue is closed and drained.
	ErrQueueClosed = errors.New("queue closed")
	// ErrInterrupted is returned when a run is canceled before its tasks drain.
	ErrInterrupted = errors.New("run interrupted")
	// ErrDrainTimeout is returned when tasks do not drain within the configured wait.
	ErrDrainTimeout = errors.New("drain timeout exceeded")
)
