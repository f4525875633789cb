package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"FeedIngestor/internal/batch"
	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

// ErrRunInProgress is returned when a run is triggered while another one holds the run lock.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// FeedSource yields the configured feeds.
type FeedSource interface {
	LoadFeeds() ([]domain.FeedConfig, error)
}

// FeedResolver picks the reachable candidate URLs of a feed.
type FeedResolver interface {
	ResolveFeedWithFallback(ctx context.Context, feed domain.FeedConfig) domain.ResolvedFeed
}

// FeedFetcher downloads and parses a resolved feed.
type FeedFetcher interface {
	FetchFeedWithRetry(ctx context.Context, rf *domain.ResolvedFeed) domain.FetchResult
}

// ItemNormalizer maps raw feed items to articles; nil means drop.
type ItemNormalizer interface {
	Normalize(item domain.RawItem, feed domain.FeedConfig) *domain.Article
}

// ArticleValidator applies the article rules.
type ArticleValidator interface {
	Validate(ctx context.Context, a domain.Article) domain.ValidationResult
}

// Deduplicator detects exact and near duplicates.
type Deduplicator interface {
	CheckDuplicates(ctx context.Context, a domain.Article, hash string) (domain.DuplicateCheckResult, error)
	Remember(a domain.Article)
	MarkSeen(ctx context.Context, hashes []string) error
	Reset()
}

// PipelineDeps wires all components and driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Feeds      FeedSource
	Resolver   FeedResolver
	Fetcher    FeedFetcher
	Normalizer ItemNormalizer
	Validator  ArticleValidator
	Dedup      Deduplicator
	Batches    *batch.Manager
	Store      ports.ArticleStore
	Publisher  ports.ArticlePublisher
	Notifier   ports.Notifier
	Errors     ports.ErrorRecorder
	Clock      clock.Clock
	Logger     *slog.Logger
	// InterFeedDelay is slept between two processed feeds.
	InterFeedDelay time.Duration
	// OnRun observes every finished run summary.
	OnRun func(domain.RunSummary)
}

// Pipeline implements the feed-ingestion workflow. Runs are serialized by a run lock.
type Pipeline struct {
	runMu sync.Mutex

	feeds      FeedSource
	resolver   FeedResolver
	fetcher    FeedFetcher
	normalizer ItemNormalizer
	validator  ArticleValidator
	dedup      Deduplicator
	batches    *batch.Manager
	store      ports.ArticleStore
	publisher  ports.ArticlePublisher
	notifier   ports.Notifier
	errors     ports.ErrorRecorder
	clock      clock.Clock
	logger     *slog.Logger
	delay      time.Duration
	onRun      func(domain.RunSummary)

	lastMu sync.RWMutex
	last   *domain.RunSummary
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		feeds:      deps.Feeds,
		resolver:   deps.Resolver,
		fetcher:    deps.Fetcher,
		normalizer: deps.Normalizer,
		validator:  deps.Validator,
		dedup:      deps.Dedup,
		batches:    deps.Batches,
		store:      deps.Store,
		publisher:  deps.Publisher,
		notifier:   deps.Notifier,
		errors:     deps.Errors,
		clock:      deps.Clock,
		logger:     deps.Logger,
		delay:      deps.InterFeedDelay,
		onRun:      deps.OnRun,
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.errors == nil {
		p.errors = discardRecorder{}
	}
	if p.batches == nil {
		p.batches = batch.NewManager(batch.Deps{Clock: p.clock, Logger: p.logger})
	}
	return p
}

// FetchAllFeeds processes every enabled feed sequentially in registry order. A failing feed never
// aborts the others. The only errors are a registry ConfigError, ErrRunInProgress and
// cancellation; on cancellation the partial summary is returned alongside ctx.Err().
func (p *Pipeline) FetchAllFeeds(ctx context.Context) (domain.RunSummary, error) {
	if !p.runMu.TryLock() {
		return domain.RunSummary{}, ErrRunInProgress
	}
	defer p.runMu.Unlock()

	summary := domain.RunSummary{RunID: uuid.NewString(), StartedAt: p.clock.Now().UTC()}

	feeds, err := p.feeds.LoadFeeds()
	if err != nil {
		return summary, fmt.Errorf("load feeds: %w", err)
	}

	p.dedup.Reset()
	log := p.logger.With("run_id", summary.RunID)
	log.Info("ingestion run started", "feeds", len(feeds))

	var runErr error
	processed := 0
	for _, feed := range feeds {
		if !feed.Enabled {
			summary.Add(domain.FeedReport{Name: feed.Name, Skipped: true})
			log.Debug("feed disabled, skipping", "feed", feed.Name)
			continue
		}
		if processed > 0 && p.delay > 0 {
			if err := p.clock.Sleep(ctx, p.delay); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		report := p.processFeedSafely(ctx, feed)
		summary.Add(report)
		processed++
	}

	p.batches.Flush(context.WithoutCancel(ctx))
	summary.FinishedAt = p.clock.Now().UTC()
	p.finish(ctx, log, summary)

	if runErr != nil {
		return summary, fmt.Errorf("run interrupted: %w", runErr)
	}
	return summary, nil
}

// Drain waits for an in-flight run and then keeps the run lock, so every later trigger gets
// ErrRunInProgress. Used at shutdown before the sink and stores are closed.
func (p *Pipeline) Drain(ctx context.Context) error {
	locked := make(chan struct{})
	go func() {
		p.runMu.Lock()
		close(locked)
	}()
	select {
	case <-locked:
		return nil
	case <-ctx.Done():
		// The waiter still gets the lock eventually; hand it back.
		go func() {
			<-locked
			p.runMu.Unlock()
		}()
		return fmt.Errorf("wait for running ingestion: %w", ctx.Err())
	}
}

// LastSummary returns the most recent finished run, if any.
func (p *Pipeline) LastSummary() (domain.RunSummary, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	if p.last == nil {
		return domain.RunSummary{}, false
	}
	return *p.last, true
}

func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, summary domain.RunSummary) {
	p.lastMu.Lock()
	p.last = &summary
	p.lastMu.Unlock()

	if p.onRun != nil {
		p.onRun(summary)
	}

	t := summary.Totals
	log.Info("ingestion run finished",
		"feeds_ok", t.FeedsSucceeded,
		"feeds_failed", t.FeedsFailed,
		"feeds_skipped", t.FeedsSkipped,
		"fetched", t.Fetched,
		"stored", t.Stored,
		"duplicates", t.Duplicate,
		"invalid", t.Invalid,
		"elapsed", summary.FinishedAt.Sub(summary.StartedAt),
	)

	if p.notifier != nil && t.FeedsFailed > 0 {
		if err := p.notifier.PublishSummary(context.WithoutCancel(ctx), summary); err != nil {
			log.Warn("run alert not delivered", "error", err)
		}
	}
}

// processFeedSafely turns a panic anywhere in the feed's processing into a failed report.
func (p *Pipeline) processFeedSafely(ctx context.Context, feed domain.FeedConfig) (report domain.FeedReport) {
	started := p.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("feed processing panicked", "feed", feed.Name, "panic", r, "stack", string(debug.Stack()))
			p.errors.Record(ctx, feed.Name, domain.KindProcessingError, fmt.Sprintf("panic: %v", r), nil)
			report = domain.FeedReport{Name: feed.Name, Success: false}
		}
		report.ElapsedMs = p.clock.Now().Sub(started).Milliseconds()
	}()
	return p.processFeed(ctx, feed)
}

func (p *Pipeline) processFeed(ctx context.Context, feed domain.FeedConfig) domain.FeedReport {
	report := domain.FeedReport{Name: feed.Name}
	log := p.logger.With("feed", feed.Name)

	rf := p.resolver.ResolveFeedWithFallback(ctx, feed)
	if rf.Failed {
		log.Warn("no candidate url resolved, skipping feed")
		return report
	}

	res := p.fetcher.FetchFeedWithRetry(ctx, &rf)
	if !res.Success {
		msg := "fetch failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		log.Error("feed failed", "attempts", len(res.Attempts), "error", msg)
		p.errors.Record(ctx, feed.Name, domain.KindFeedFailed, msg, map[string]any{
			"attempts": len(res.Attempts),
			"urls":     rf.Candidates,
		})
		return report
	}
	report.ActiveURL = rf.ActiveURL
	report.Fetched = len(res.Items)

	articles := make([]domain.Article, 0, len(res.Items))
	for _, item := range res.Items {
		if a := p.normalizer.Normalize(item, feed); a != nil {
			articles = append(articles, *a)
		}
	}
	report.Dropped = report.Fetched - len(articles)

	_, err := batch.Process(ctx, p.batches, feed.Name, articles, func(ctx context.Context, items []domain.Article) (batch.Result, error) {
		v := p.ValidateBatch(ctx, items, feed.Name)
		report.Valid += v.Summary.Valid
		report.Invalid += v.Summary.Invalid
		report.Duplicate += v.Summary.Duplicate
		report.Similar += v.Summary.Similar
		report.Errored += v.Summary.Errored
		report.Stored += p.persist(ctx, feed.Name, v.ValidArticles)
		return batch.Result{Processed: len(items) - v.Summary.Errored, Failed: v.Summary.Errored}, nil
	})
	if err != nil {
		log.Warn("feed processing interrupted", "error", err)
		return report
	}

	report.Success = true
	log.Info("feed processed",
		"url", report.ActiveURL,
		"fetched", report.Fetched,
		"valid", report.Valid,
		"stored", report.Stored,
		"duplicates", report.Duplicate,
	)
	return report
}

// persist upserts accepted articles and returns how many were new. Failures are logged and
// recorded; nothing is rolled back.
func (p *Pipeline) persist(ctx context.Context, source string, articles []domain.Article) int {
	if len(articles) == 0 || p.store == nil {
		return 0
	}

	res, err := p.store.UpsertBatch(ctx, articles)
	if err != nil {
		p.logger.Error("article upsert failed", "feed", source, "count", len(articles), "error", err)
		p.errors.Record(ctx, source, domain.KindStorage, err.Error(), map[string]any{"count": len(articles)})
		if len(res.Failed) == 0 {
			return res.Inserted
		}
	}
	for hash, ferr := range res.Failed {
		p.logger.Error("article not stored", "feed", source, "content_hash", hash, "error", ferr)
	}

	kept := make([]string, 0, len(articles))
	var fresh []domain.Article
	inserted := make(map[string]struct{}, len(res.InsertedHashes))
	for _, h := range res.InsertedHashes {
		inserted[h] = struct{}{}
	}
	for _, a := range articles {
		if _, failed := res.Failed[a.ContentHash]; failed {
			continue
		}
		kept = append(kept, a.ContentHash)
		if _, ok := inserted[a.ContentHash]; ok {
			fresh = append(fresh, a)
		}
	}

	if err := p.dedup.MarkSeen(ctx, kept); err != nil {
		p.logger.Warn("seen cache update failed", "feed", source, "error", err)
	}
	if p.publisher != nil && len(fresh) > 0 {
		if err := p.publisher.PublishArticles(ctx, fresh); err != nil {
			p.logger.Warn("article events not published", "feed", source, "count", len(fresh), "error", err)
		}
	}
	return res.Inserted
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, string, domain.ErrorKind, string, map[string]any) {}
