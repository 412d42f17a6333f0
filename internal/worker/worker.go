// Package worker downloads images, ranks their colors, and writes result rows.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/toprgb/internal/metrics"
	"github.com/JakeFAU/toprgb/internal/toprgb"
)

const (
	defaultMaxWriteErrors = 5
	tempFilePattern       = "toprgb_*_temp"
)

// Config controls Worker behavior.
type Config struct {
	// TempDir holds downloaded bodies. Empty uses os.TempDir().
	TempDir string
	// MaxWriteErrors is how many sink write failures a task tolerates before
	// it halts. Zero uses 5.
	MaxWriteErrors int
}

// Worker consumes queue items and runs one Task per item.
type Worker struct {
	queue   toprgb.Queue
	fetcher toprgb.Fetcher
	decoder toprgb.Decoder
	sink    toprgb.ResultSink
	limiter toprgb.RateLimiter
	retry   toprgb.RetryPolicy
	clock   toprgb.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. limiter may be nil.
func New(
	queue toprgb.Queue,
	fetcher toprgb.Fetcher,
	decoder toprgb.Decoder,
	sink toprgb.ResultSink,
	limiter toprgb.RateLimiter,
	retry toprgb.RetryPolicy,
	clock toprgb.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxWriteErrors <= 0 {
		cfg.MaxWriteErrors = defaultMaxWriteErrors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   queue,
		fetcher: fetcher,
		decoder: decoder,
		sink:    sink,
		limiter: limiter,
		retry:   retry,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming queue items until the queue is closed and drained or
// the context finishes. A task that has been dequeued runs to completion even
// if ctx is canceled meanwhile.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, toprgb.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued image", zap.Int64("seq", item.Seq), zap.String("url", item.URL))

		metrics.IncActiveWorkers()
		status := w.NewTask(item).Run(context.WithoutCancel(ctx))
		metrics.DecActiveWorkers()
		metrics.ObserveTask(status)
	}
}

// NewTask binds item to this worker's collaborators.
func (w *Worker) NewTask(item toprgb.WorkItem) *Task {
	return &Task{
		item:   item,
		w:      w,
		logger: w.logger.With(zap.Int64("seq", item.Seq), zap.String("url", item.URL)),
	}
}
