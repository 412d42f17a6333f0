// Package app builds the collaborators for one toprgb run and tears them down
// afterwards.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/toprgb/internal/clock/system"
	"github.com/JakeFAU/toprgb/internal/config"
	"github.com/JakeFAU/toprgb/internal/dispatcher"
	"github.com/JakeFAU/toprgb/internal/extsort"
	collyfetcher "github.com/JakeFAU/toprgb/internal/fetcher/colly"
	"github.com/JakeFAU/toprgb/internal/id/uuid"
	"github.com/JakeFAU/toprgb/internal/imgx"
	"github.com/JakeFAU/toprgb/internal/metrics"
	"github.com/JakeFAU/toprgb/internal/output"
	"github.com/JakeFAU/toprgb/internal/pipeline"
	"github.com/JakeFAU/toprgb/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/toprgb/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/toprgb/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/toprgb/internal/storage/gcs"
	localstorage "github.com/JakeFAU/toprgb/internal/storage/local"
	"github.com/JakeFAU/toprgb/internal/toprgb"
	"github.com/JakeFAU/toprgb/internal/worker"
)

// queueDepthPerWorker sizes the work queue relative to the pool.
const queueDepthPerWorker = 4

// App contains the run's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *pipeline.Orchestrator
	sink         *output.CSVSink
	metricsSrv   *metrics.Server
	storage      *storage.Client
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
}

// Build creates every dependency described by cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	logger.Info("building run dependencies",
		zap.String("input", cfg.Input),
		zap.Int("threads", cfg.Threads),
		zap.Int64("chunk_size", cfg.ChunkSize),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	clock := system.New()
	sink, err := output.Open(cfg.Output, clock)
	if err != nil {
		return nil, fmt.Errorf("output init failed: %w", err)
	}
	a.sink = sink
	if sink.Path() != cfg.Output {
		logger.Warn("output exists; writing to a new file", zap.String("requested", cfg.Output), zap.String("path", sink.Path()))
	}

	sorter, err := extsort.New(extsort.Config{
		ChunkSize: cfg.ChunkSize,
		TempDir:   cfg.Sort.TempDir,
		Workers:   cfg.Sort.Workers,
	}, logger.Named("extsort"))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("sorter init failed: %w", err)
	}

	archive, err := a.setupStorage(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.setupMetrics(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	queue := queueMemory.NewQueue(cfg.Threads * queueDepthPerWorker)
	a.orchestrator = pipeline.New(
		pipeline.Config{
			InputPath:     cfg.Input,
			TempDir:       cfg.Sort.TempDir,
			DrainTimeout:  cfg.DrainTimeout,
			ArchivePrefix: cfg.Storage.Prefix,
			Topic:         cfg.PubSub.TopicName,
		},
		sorter,
		dispatcher.New(queue, a.setupWorkers(queue, clock)),
		sink,
		archive,
		publisher,
		clock,
		uuid.New(),
		logger.Named("pipeline"),
	)
	return a, nil
}

// Run executes the pipeline.
func (a *App) Run(ctx context.Context) (toprgb.Summary, error) {
	summary, err := a.orchestrator.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("run pipeline: %w", err)
	}
	return summary, nil
}

// Close releases network clients and the metrics server. The output sink is
// owned by the pipeline and only closed here if Build failed midway.
func (a *App) Close(ctx context.Context) {
	if a.orchestrator == nil && a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("output close failed", zap.Error(err))
		}
	}
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func (a *App) setupWorkers(queue toprgb.Queue, clock toprgb.Clock) []dispatcher.Runner {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.HTTP.UserAgent,
		Timeout:      a.cfg.RequestTimeout(),
		MaxBodyBytes: a.cfg.HTTP.MaxImageBytes,
	})
	retry := toprgb.NewExponentialRetryPolicy(a.cfg.HTTP.MaxRetries, a.cfg.BackoffInitial(), a.cfg.BackoffMax())

	var limiter toprgb.RateLimiter
	if a.cfg.HTTP.PerHostRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			PerHostRPS:   a.cfg.HTTP.PerHostRPS,
			PerHostBurst: a.cfg.HTTP.PerHostBurst,
		})
		a.logger.Info("per-host rate limit enabled",
			zap.Float64("rps", a.cfg.HTTP.PerHostRPS),
			zap.Int("burst", a.cfg.HTTP.PerHostBurst),
		)
	}

	decoder := imgx.New()
	workerCfg := worker.Config{TempDir: a.cfg.Sort.TempDir}
	runners := make([]dispatcher.Runner, 0, a.cfg.Threads)
	for i := 0; i < a.cfg.Threads; i++ {
		runners = append(runners, worker.New(
			queue,
			fetcher,
			decoder,
			a.sink,
			limiter,
			retry,
			clock,
			workerCfg,
			a.logger.Named("worker").With(zap.Int("worker", i)),
		))
	}
	return runners
}

func (a *App) setupStorage(ctx context.Context) (toprgb.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving output to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving output locally", zap.String("dir", a.cfg.Storage.LocalDir))
		return store, nil
	default:
		a.logger.Debug("output archiving disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (toprgb.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Debug("no Pub/Sub topic configured; summary will not be published")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client.Topic(a.cfg.PubSub.TopicName))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupMetrics() error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	srv := metrics.NewServer(a.cfg.Metrics.Addr, a.logger.Named("metrics"))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("metrics server init failed: %w", err)
	}
	a.metricsSrv = srv
	return nil
}

// IsIncomplete reports whether err means the run stopped before its tasks
// drained.
func IsIncomplete(err error) bool {
	return errors.Is(err, toprgb.ErrInterrupted) || errors.Is(err, toprgb.ErrDrainTimeout)
}
