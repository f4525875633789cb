package ports

import (
	"context"
	"time"

	"FeedIngestor/internal/domain"
)

// ArticleStore is the upsert-capable sink keyed by content hash.
// FindByLink receives a lower-cased link and matches case-insensitively.
type ArticleStore interface {
	UpsertBatch(ctx context.Context, articles []domain.Article) (domain.UpsertResult, error)
	FindByHash(ctx context.Context, hash string) (*domain.StoredArticle, error)
	FindByLink(ctx context.Context, link string) (*domain.StoredArticle, error)
	RecentCandidates(ctx context.Context, tokens []string, since time.Time, limit int) ([]domain.StoredArticle, error)
}

// RecordStore is the append-only destination for error and batch metric records.
type RecordStore interface {
	WriteErrors(ctx context.Context, records []domain.ErrorRecord) error
	WriteMetrics(ctx context.Context, metrics []domain.BatchMetrics) error
}

// ErrorRecorder accepts error records without blocking on the store.
type ErrorRecorder interface {
	Record(ctx context.Context, identifier string, kind domain.ErrorKind, message string, metadata map[string]any)
}

// MetricsRecorder accepts batch metrics for eventual persistence.
type MetricsRecorder interface {
	RecordMetrics(ctx context.Context, metrics []domain.BatchMetrics)
}

// SeenCache remembers content hashes across runs.
type SeenCache interface {
	Seen(ctx context.Context, hash string) (bool, error)
	MarkSeen(ctx context.Context, hash string) error
}

// ArticlePublisher streams accepted articles to downstream consumers.
type ArticlePublisher interface {
	PublishArticles(ctx context.Context, articles []domain.Article) error
}

// Notifier streams run alerts to Telegram or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
