package toprgb

import (
	"net/http"
	"time"
)

// WorkItem is a deduplicated URL handed from the orchestrator to a worker.
type WorkItem struct {
	URL string
	// Seq is the 1-based position of the URL in the deduplicated stream.
	Seq int64
}

// FetchRequest captures everything needed to download one image.
type FetchRequest struct {
	URL string
	// Dest is the local file the body is written to.
	Dest string
}

// FetchResponse describes a completed download.
type FetchResponse struct {
	URL string
	// FinalURL differs from URL when a Location hop was followed.
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Bytes      int64
	Duration   time.Duration
	Redirected bool
}

// SortStats reports what the external sorter did.
type SortStats struct {
	Lines    int64         `json:"lines"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Summary is the end-of-run report produced by the orchestrator.
type Summary struct {
	RunID      string        `json:"run_id"`
	Input      string        `json:"input"`
	OutputPath string        `json:"output_path"`
	Processed  int64         `json:"urls_processed"`
	Skipped    int64         `json:"urls_skipped"`
	Elapsed    time.Duration `json:"elapsed"`
	Sort       SortStats     `json:"sort"`
	Completed  bool          `json:"completed"`
	ArchiveURI string        `json:"archive_uri,omitempty"`
}
