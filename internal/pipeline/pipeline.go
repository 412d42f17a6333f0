// Package pipeline runs a toprgb job end to end: sort the URL list, drop
// adjacent duplicates, fan the survivors out to the worker pool, and finish
// the result file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/JakeFAU/toprgb/internal/extsort"
	"github.com/JakeFAU/toprgb/internal/metrics"
	"github.com/JakeFAU/toprgb/internal/toprgb"
)

const (
	defaultDrainTimeout = 24 * time.Hour
	sortedFilePattern   = "toprgb_*_sorted"
	archiveContentType  = "text/csv"
)

// Sorter orders the input file.
type Sorter interface {
	Sort(inputPath, outputPath string) toprgb.SortStats
}

// Dispatcher runs the worker pool.
type Dispatcher interface {
	Start(ctx context.Context)
	Submit(ctx context.Context, item toprgb.WorkItem) error
	CloseAndWait(ctx context.Context, timeout time.Duration) error
}

// Sink is the result file shared with the workers.
type Sink interface {
	toprgb.ResultSink
	Path() string
	Flush() error
	Close() error
}

// Config controls a run.
type Config struct {
	InputPath string
	// TempDir holds the sorted copy of the input. Empty uses os.TempDir().
	TempDir string
	// DrainTimeout bounds the wait for submitted tasks. Zero uses 24h.
	DrainTimeout time.Duration
	// ArchivePrefix is prepended to the archived object name.
	ArchivePrefix string
	// Topic receives the run summary when a publisher is configured.
	Topic string
}

// Orchestrator wires the sorter, dispatcher and sink for one run.
type Orchestrator struct {
	cfg        Config
	sorter     Sorter
	dispatcher Dispatcher
	sink       Sink
	archive    toprgb.BlobStore
	publisher  toprgb.Publisher
	clock      toprgb.Clock
	idGen      toprgb.IDGenerator
	logger     *zap.Logger
}

// New constructs an Orchestrator. archive and publisher may be nil.
func New(
	cfg Config,
	sorter Sorter,
	dispatcher Dispatcher,
	sink Sink,
	archive toprgb.BlobStore,
	publisher toprgb.Publisher,
	clock toprgb.Clock,
	idGen toprgb.IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		sorter:     sorter,
		dispatcher: dispatcher,
		sink:       sink,
		archive:    archive,
		publisher:  publisher,
		clock:      clock,
		idGen:      idGen,
		logger:     logger,
	}
}

// Run executes the job. When ctx is canceled or the drain wait times out the
// sink is left unflushed and unclosed, and the partial summary is returned
// with toprgb.ErrInterrupted or toprgb.ErrDrainTimeout.
func (o *Orchestrator) Run(ctx context.Context) (toprgb.Summary, error) {
	start := o.clock.Now()
	runID, err := o.idGen.NewID()
	if err != nil {
		o.logger.Warn("run id unavailable", zap.Error(err))
	}
	logger := o.logger.With(zap.String("run_id", runID))
	summary := toprgb.Summary{
		RunID:      runID,
		Input:      o.cfg.InputPath,
		OutputPath: o.sink.Path(),
	}
	logger.Info("run started", zap.String("input", summary.Input), zap.String("output", summary.OutputPath))

	sortedPath, err := o.reserveSortedFile()
	if err != nil {
		return summary, err
	}
	defer o.removeSorted(logger, sortedPath)

	summary.Sort = o.sorter.Sort(o.cfg.InputPath, sortedPath)

	o.dispatcher.Start(context.WithoutCancel(ctx))
	processed, skipped, submitErr := o.submitDistinct(ctx, sortedPath)
	summary.Processed = processed
	summary.Skipped = skipped

	waitErr := o.dispatcher.CloseAndWait(ctx, o.cfg.DrainTimeout)
	summary.Elapsed = o.clock.Now().Sub(start)
	if runErr := errors.Join(submitErr, waitErr); runErr != nil {
		logger.Error("run did not complete; output left unflushed",
			zap.Int64("urls_processed", processed),
			zap.Duration("elapsed", summary.Elapsed),
			zap.Error(runErr),
		)
		if submitErr != nil {
			return summary, submitErr
		}
		return summary, waitErr
	}

	if err := o.sink.Close(); err != nil {
		logger.Error("close output failed", zap.Error(err))
		return summary, fmt.Errorf("close output: %w", err)
	}
	summary.Completed = true

	summary.ArchiveURI = o.archiveOutput(ctx, logger, runID)
	o.publishSummary(ctx, logger, summary)

	logger.Info("run finished",
		zap.String("output", summary.OutputPath),
		zap.String("urls_processed", humanize.Comma(summary.Processed)),
		zap.String("urls_skipped", humanize.Comma(summary.Skipped)),
		zap.Int("chunks", summary.Sort.Chunks),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// submitDistinct walks the sorted file and submits each line that differs
// from the previously submitted one.
func (o *Orchestrator) submitDistinct(ctx context.Context, sortedPath string) (processed, skipped int64, err error) {
	f, err := os.Open(sortedPath)
	if err != nil {
		o.logger.Error("open sorted input failed", zap.String("path", sortedPath), zap.Error(err))
		return 0, 0, nil
	}
	defer f.Close()

	var (
		prev    string
		started bool
	)
	reader := extsort.NewLineReader(f)
	for {
		line, err := reader.Next()
		if err == io.EOF {
			return processed, skipped, nil
		}
		if err != nil {
			o.logger.Error("read sorted input failed; submitting what was read", zap.Error(err))
			return processed, skipped, nil
		}
		if started && line == prev {
			skipped++
			metrics.ObserveURL("duplicate")
			continue
		}
		prev, started = line, true
		processed++
		metrics.ObserveURL("processed")

		if err := o.dispatcher.Submit(ctx, toprgb.WorkItem{URL: line, Seq: processed}); err != nil {
			if ctx.Err() != nil {
				return processed - 1, skipped, fmt.Errorf("%w: %w", toprgb.ErrInterrupted, err)
			}
			return processed - 1, skipped, err
		}
	}
}

func (o *Orchestrator) reserveSortedFile() (string, error) {
	f, err := os.CreateTemp(o.cfg.TempDir, sortedFilePattern)
	if err != nil {
		return "", fmt.Errorf("create sorted temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close sorted temp file: %w", err)
	}
	return f.Name(), nil
}

func (o *Orchestrator) removeSorted(logger *zap.Logger, sortedPath string) {
	if err := os.Remove(sortedPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove sorted temp file failed", zap.String("path", sortedPath), zap.Error(err))
	}
}

func (o *Orchestrator) archiveOutput(ctx context.Context, logger *zap.Logger, runID string) string {
	if o.archive == nil {
		return ""
	}
	f, err := os.Open(o.sink.Path())
	if err != nil {
		logger.Error("open output for archive failed", zap.Error(err))
		return ""
	}
	defer f.Close()

	name := path.Join(o.cfg.ArchivePrefix, runID+".csv")
	uri, err := o.archive.PutObject(ctx, name, archiveContentType, f)
	if err != nil {
		logger.Error("archive output failed", zap.String("object", name), zap.Error(err))
		return ""
	}
	logger.Info("output archived", zap.String("uri", uri))
	return uri
}

func (o *Orchestrator) publishSummary(ctx context.Context, logger *zap.Logger, summary toprgb.Summary) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, summary)
	if err != nil {
		logger.Error("publish summary failed", zap.String("topic", o.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("summary published", zap.String("topic", o.cfg.Topic), zap.String("message_id", id))
}
