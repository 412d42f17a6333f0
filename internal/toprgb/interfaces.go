package toprgb

import (
	"context"
	"image"
	"io"
	"time"
)

// Fetcher downloads a remote image into a local file.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Decoder turns a local image file into a pixel grid.
type Decoder interface {
	DecodeFile(path string) (image.Image, error)
}

// Queue provides enqueue/dequeue semantics for work items.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	Dequeue(ctx context.Context) (WorkItem, error)
	Close()
}

// RateLimiter paces requests per host.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// ResultSink receives formatted result rows. Implementations must be safe for
// concurrent use.
type ResultSink interface {
	WriteRow(row string) error
}

// BlobStore writes finished artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RetryPolicy decides whether and when a failed transfer is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
