package worker

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/toprgb/internal/metrics"
	"github.com/JakeFAU/toprgb/internal/output"
	"github.com/JakeFAU/toprgb/internal/topk"
	"github.com/JakeFAU/toprgb/internal/toprgb"
)

// Task statuses reported to metrics.
const (
	StatusSuccess           = "success"
	StatusInvalidURL        = "invalid_url"
	StatusUnsupportedScheme = "unsupported_scheme"
	StatusFetchError        = "fetch_error"
	StatusDecodeError       = "decode_error"
	StatusHalted            = "halted"
	StatusWriteError        = "write_error"
	StatusPanic             = "panic"
)

// Task processes one image URL. It never returns an error; every failure is
// logged and the URL is skipped.
type Task struct {
	item        toprgb.WorkItem
	w           *Worker
	logger      *zap.Logger
	halt        atomic.Bool
	writeErrors int
}

// Run downloads, decodes, ranks and writes the row for the task's URL and
// reports the outcome.
func (t *Task) Run(ctx context.Context) (status string) {
	start := t.w.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			status = StatusPanic
		}
	}()

	u, err := url.Parse(t.item.URL)
	if err != nil {
		t.logger.Warn("invalid url skipped", zap.Error(err))
		return StatusInvalidURL
	}

	var path string
	switch u.Scheme {
	case "file":
		path = u.Path
	case "http", "https":
		path, err = t.download(ctx)
		if err != nil {
			t.logger.Warn("download failed; url skipped", zap.Error(err))
			return StatusFetchError
		}
		defer t.removeTemp(path)
	default:
		t.logger.Warn("unsupported scheme; url skipped", zap.String("scheme", u.Scheme))
		return StatusUnsupportedScheme
	}

	img, err := t.w.decoder.DecodeFile(path)
	if err != nil {
		t.logger.Warn("decode failed; url skipped", zap.Error(err))
		return StatusDecodeError
	}

	tracker := topk.NewTracker(topk.DefaultK)
	if !t.countPixels(img, tracker) {
		t.logger.Warn("task halted before all pixels were counted")
		return StatusHalted
	}

	top := tracker.Top()
	colors := make([]string, len(top))
	for i, e := range top {
		colors[i] = e.Color.String()
	}
	if err := t.w.sink.WriteRow(output.FormatRow(t.item.URL, colors)); err != nil {
		t.recordWriteError(err)
		return StatusWriteError
	}

	t.logger.Debug("image processed",
		zap.Strings("colors", colors),
		zap.Int("distinct_colors", tracker.Distinct()),
		zap.Duration("elapsed", t.w.clock.Now().Sub(start)),
	)
	return StatusSuccess
}

// countPixels scans column by column. It reports false if the task was halted.
func (t *Task) countPixels(img image.Image, tracker *topk.Tracker) bool {
	b := img.Bounds()
	var n int64
	defer func() { metrics.AddPixels(n) }()
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if t.halt.Load() {
				return false
			}
			tracker.Observe(topk.ColorKeyFromColor(img.At(x, y)))
			n++
		}
	}
	return true
}

func (t *Task) recordWriteError(err error) {
	metrics.ObserveSinkWriteError()
	t.writeErrors++
	t.logger.Error("write result row failed", zap.Int("write_errors", t.writeErrors), zap.Error(err))
	if t.writeErrors > t.w.cfg.MaxWriteErrors {
		t.logger.Error("too many write errors; halting task")
		t.halt.Store(true)
	}
}

// download copies the body into a fresh temp file, retrying transfer failures
// as the retry policy allows. The file is removed on failure.
func (t *Task) download(ctx context.Context) (string, error) {
	f, err := os.CreateTemp(t.w.cfg.TempDir, tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		t.removeTemp(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = t.fetchOnce(ctx, path)
		if err == nil {
			return path, nil
		}
		if t.w.retry == nil || !t.w.retry.ShouldRetry(err, attempt) {
			t.removeTemp(path)
			return "", fmt.Errorf("after %d attempt(s): %w", attempt, err)
		}
		backoff := t.w.retry.Backoff(attempt)
		t.logger.Info("retrying download", zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))
		if err := sleep(ctx, backoff); err != nil {
			t.removeTemp(path)
			return "", err
		}
	}
}

func (t *Task) fetchOnce(ctx context.Context, path string) error {
	if t.w.limiter != nil {
		if err := t.w.limiter.Wait(ctx, t.item.URL); err != nil {
			return err
		}
	}
	resp, err := t.w.fetcher.Fetch(ctx, toprgb.FetchRequest{URL: t.item.URL, Dest: path})
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if resp.Redirected {
		t.logger.Debug("followed redirect", zap.String("final_url", resp.FinalURL))
	}
	return nil
}

func (t *Task) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("remove temp file failed", zap.String("path", path), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
