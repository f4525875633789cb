package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"FeedIngestor/internal/batch"
	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/config"
	"FeedIngestor/internal/dedup"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/errorsink"
	"FeedIngestor/internal/fetcher"
	"FeedIngestor/internal/infrastructure/archive"
	"FeedIngestor/internal/infrastructure/events"
	"FeedIngestor/internal/infrastructure/httpapi"
	"FeedIngestor/internal/infrastructure/scheduler"
	"FeedIngestor/internal/infrastructure/seencache"
	"FeedIngestor/internal/infrastructure/storage"
	"FeedIngestor/internal/infrastructure/telegram"
	"FeedIngestor/internal/logging"
	"FeedIngestor/internal/metrics"
	"FeedIngestor/internal/normalizer"
	"FeedIngestor/internal/ports"
	"FeedIngestor/internal/ratelimit"
	"FeedIngestor/internal/registry"
	"FeedIngestor/internal/resolver"
	"FeedIngestor/internal/usecase"
	"FeedIngestor/internal/validator"
)

const closeTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sink      *errorsink.Sink
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	api       *httpapi.Server
	closers   []func() error
}

// New connects every configured adapter and builds the pipeline. Adapters whose config is
// empty are left out: no Redis address means no seen cache, no brokers means no events.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}
	clk := clock.Real{}

	articles, records, err := a.openStorage(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Archive.Bucket != "" {
		arch, err := archive.New(ctx, archive.Config{
			Bucket:       cfg.Archive.Bucket,
			Prefix:       cfg.Archive.Prefix,
			Region:       cfg.Archive.Region,
			Profile:      cfg.Archive.Profile,
			UsePathStyle: cfg.Archive.UsePathStyle,
		}, clk)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		records = errorsink.NewFanout(cfg.ErrorLog.BatchSize*20, records, arch)
		baseLogger.Info("archiving error records to s3", "bucket", cfg.Archive.Bucket)
	}

	a.sink = errorsink.New(errorsink.Deps{
		Store:         records,
		Clock:         clk,
		Logger:        baseLogger.With("component", "errorsink"),
		BatchSize:     cfg.ErrorLog.BatchSize,
		FlushInterval: cfg.ErrorLog.FlushInterval,
		OnRecord:      a.metrics.ObserveError,
	})

	var seen ports.SeenCache
	if cfg.Redis.Address != "" {
		cache, closeRedis, err := seencache.Dial(ctx, seencache.Config{
			Addr:      cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.SeenTTL,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("seen cache: %w", err)
		}
		seen = cache
		a.closers = append(a.closers, closeRedis)
	}

	var publisher ports.ArticlePublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.Dial(cfg.Kafka.Brokers, cfg.Kafka.Topic, baseLogger.With("component", "events"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("events: %w", err)
		}
		publisher = kafka
		a.closers = append(a.closers, kafka.Close)
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests:            cfg.RateLimit.MaxRequests,
		Window:                 cfg.RateLimit.Window,
		MaxConsecutiveFailures: cfg.RateLimit.MaxConsecutiveFailures,
		PauseDuration:          cfg.RateLimit.PauseDuration,
	}, clk, baseLogger.With("component", "ratelimit"))

	var links validator.LinkChecker
	if cfg.Validation.CheckReachability {
		links = validator.NewHeadChecker(nil, cfg.Validation.LinkCheckTimeout, cfg.Validation.LinkChecksPerSec, cfg.Fetch.UserAgent)
	}

	const mib = 1 << 20
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Feeds: registry.New(cfg.Feeds, cfg.Policy, cfg.Fetch, baseLogger.With("component", "registry")),
		Resolver: resolver.New(resolver.Deps{
			Clock:         clk,
			Errors:        a.sink,
			Logger:        baseLogger.With("component", "resolver"),
			TTL:           cfg.DNS.CacheTTL,
			FailureTTL:    cfg.DNS.FailureTTL,
			LookupTimeout: cfg.DNS.LookupTimeout,
		}),
		Fetcher: fetcher.New(fetcher.Deps{
			Limiter:      limiter,
			Clock:        clk,
			Errors:       a.sink,
			Logger:       baseLogger.With("component", "fetcher"),
			UserAgent:    cfg.Fetch.UserAgent,
			MaxRedirects: cfg.Fetch.MaxRedirects,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
			OnAttempt:    a.metrics.ObserveAttempt,
		}),
		Normalizer: normalizer.New(normalizer.Options{
			MaxTitleLength:       cfg.Normalize.MaxTitleLength,
			MaxDescriptionLength: cfg.Normalize.MaxDescriptionLength,
			MaxTags:              cfg.Normalize.MaxTags,
		}, clk),
		Validator: validator.New(validator.Rules{
			TitleMin:          cfg.Validation.TitleMin,
			TitleMax:          cfg.Validation.TitleMax,
			DescriptionMin:    cfg.Validation.DescriptionMin,
			DescriptionMax:    cfg.Validation.DescriptionMax,
			MaxAge:            cfg.Validation.MaxAge,
			DeniedDomains:     cfg.Validation.DeniedDomains,
			DeniedExtensions:  cfg.Validation.DeniedExtensions,
			CheckReachability: cfg.Validation.CheckReachability,
		}, links, clk),
		Dedup: dedup.New(dedup.Deps{
			Store:  articles,
			Seen:   seen,
			Clock:  clk,
			Logger: baseLogger.With("component", "dedup"),
			Options: dedup.Options{
				Threshold:       cfg.Dedup.SimilarityThreshold,
				Weights:         dedup.Weights{Title: cfg.Dedup.TitleWeight, Description: cfg.Dedup.DescriptionWeight},
				CandidateWindow: cfg.Dedup.CandidateWindow,
				MaxCandidates:   cfg.Dedup.MaxCandidates,
				RecentCapacity:  cfg.Dedup.RecentCapacity,
			},
		}),
		Batches: batch.NewManager(batch.Deps{
			Sampler: batch.NewProcessSampler(),
			Collect: batch.RuntimeCollector,
			Clock:   clk,
			Metrics: a.sink,
			Logger:  baseLogger.With("component", "batch"),
			Options: batch.Options{
				Size:            cfg.Batch.Size,
				GCEvery:         cfg.Batch.GCEvery,
				SoftLimit:       uint64(cfg.Batch.SoftLimitMB) * mib,
				CriticalLimit:   uint64(cfg.Batch.CriticalLimitMB) * mib,
				MetricsCapacity: cfg.Batch.MetricsCapacity,
			},
			OnBatch: a.metrics.ObserveBatch,
		}),
		Store:          articles,
		Publisher:      publisher,
		Notifier:       notifier,
		Errors:         a.sink,
		Clock:          clk,
		Logger:         baseLogger.With("component", "pipeline"),
		InterFeedDelay: cfg.Fetch.InterFeedDelay,
		OnRun:          a.metrics.ObserveRun,
	})

	cron, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), cfg.Scheduler.RunOnStart, baseLogger.With("component", "cron"))
	if err != nil {
		a.close()
		return nil, err
	}
	a.scheduler = usecase.NewScheduler(cron, a.pipeline, baseLogger.With("component", "scheduler"))

	if cfg.HTTP.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		a.api = httpapi.New(cfg.HTTP.Addr, a.pipeline, a.metrics.Handler(), baseLogger.With("component", "httpapi"))
	}
	return a, nil
}

func (a *Application) openStorage(ctx context.Context) (ports.ArticleStore, ports.RecordStore, error) {
	switch a.cfg.Database.Driver {
	case "memory":
		a.logger.Warn("using in-memory storage, articles are lost on exit")
		repo := storage.NewMemoryRepository()
		return repo, repo, nil
	default:
		dialect := storage.Dialect(a.cfg.Database.Driver)
		db, err := storage.Open(ctx, dialect, a.cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := storage.NewSQLRepository(db, dialect)
		return repo, repo, nil
	}
}

// RunOnce performs a single ingestion cycle and flushes the error sink.
func (a *Application) RunOnce(ctx context.Context) (domain.RunSummary, error) {
	defer a.close()
	summary, err := a.pipeline.FetchAllFeeds(ctx)
	if flushErr := a.sink.Close(context.WithoutCancel(ctx)); flushErr != nil {
		a.logger.Error("final error sink flush failed", "error", flushErr)
	}
	return summary, err
}

// Run starts the scheduler, the HTTP API and the sink flusher, and blocks until ctx is done
// or one of them fails. Shutdown stops the triggers, waits for the running ingestion, flushes
// the sink and only then closes the stores.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	flushCtx, stopFlush := context.WithCancel(context.WithoutCancel(ctx))
	defer stopFlush()
	flushed := make(chan error, 1)
	go func() {
		flushed <- a.sink.Run(flushCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.scheduler.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), closeTimeout)
		defer cancel()
		return a.scheduler.Stop(stopCtx)
	})

	if a.api != nil {
		g.Go(func() error {
			return a.api.Run(gctx)
		})
	}

	a.logger.Info("feed ingestor started", "cron", a.cfg.Scheduler.CronExpression, "http", a.cfg.HTTP.Addr)
	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if drainErr := a.pipeline.Drain(drainCtx); drainErr != nil {
		a.logger.Error("ingestion still running at shutdown", "error", drainErr)
	}

	stopFlush()
	if flushErr := <-flushed; flushErr != nil {
		a.logger.Error("final error sink flush failed", "error", flushErr)
	}

	a.logger.Info("feed ingestor stopped")
	return err
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
