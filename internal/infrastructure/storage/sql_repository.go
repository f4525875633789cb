// Package storage persists articles, error records and batch metrics.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

var articleColumns = []string{"content_hash", "title", "description", "link", "published_at"}

// SQLRepository stores articles and records in Postgres or SQLite.
type SQLRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.ArticleStore = (*SQLRepository)(nil)
	_ ports.RecordStore  = (*SQLRepository)(nil)
)

// NewSQLRepository wires a sql.DB opened for dialect.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(dialect.placeholder()).RunWith(db),
	}
}

// UpsertBatch inserts each article on its own; conflicts on hash or link are skipped, not updated.
// A failing article is reported in Failed and does not stop the rest.
func (r *SQLRepository) UpsertBatch(ctx context.Context, articles []domain.Article) (domain.UpsertResult, error) {
	result := domain.UpsertResult{Failed: map[string]error{}}

	for _, a := range articles {
		inserted, err := r.insertArticle(ctx, a)
		if err != nil {
			result.Failed[a.ContentHash] = err
			continue
		}
		if inserted {
			result.Inserted++
			result.InsertedHashes = append(result.InsertedHashes, a.ContentHash)
		} else {
			result.Skipped++
		}
	}

	if len(articles) > 0 && len(result.Failed) == len(articles) {
		return result, fmt.Errorf("upsert articles: all %d inserts failed", len(articles))
	}
	return result, nil
}

func (r *SQLRepository) insertArticle(ctx context.Context, a domain.Article) (bool, error) {
	tags, err := json.Marshal(nonNil(a.Tags))
	if err != nil {
		return false, fmt.Errorf("encode tags: %w", err)
	}
	similar, err := json.Marshal(nonNil(a.Similar))
	if err != nil {
		return false, fmt.Errorf("encode similar: %w", err)
	}

	var author any
	if a.Author != "" {
		author = a.Author
	}

	res, err := r.sb.Insert("articles").
		Columns("content_hash", "link", "title", "description", "author", "tags", "source", "category", "similar", "published_at", "fetched_at").
		Values(a.ContentHash, a.Link, a.Title, a.Description, author, string(tags), a.Source, a.Category, string(similar), a.PublishedAt.UTC(), a.FetchedAt.UTC()).
		Suffix("ON CONFLICT DO NOTHING").
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// FindByHash returns nil when no article has the hash.
func (r *SQLRepository) FindByHash(ctx context.Context, hash string) (*domain.StoredArticle, error) {
	return r.findOne(ctx, sq.Eq{"content_hash": hash})
}

// FindByLink returns nil when no article has the link.
func (r *SQLRepository) FindByLink(ctx context.Context, link string) (*domain.StoredArticle, error) {
	return r.findOne(ctx, sq.Eq{"LOWER(link)": link})
}

func (r *SQLRepository) findOne(ctx context.Context, where sq.Sqlizer) (*domain.StoredArticle, error) {
	var a domain.StoredArticle
	err := r.sb.Select(articleColumns...).From("articles").Where(where).Limit(1).
		QueryRowContext(ctx).
		Scan(&a.ContentHash, &a.Title, &a.Description, &a.Link, &a.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find article: %w", err)
	}
	return &a, nil
}

// RecentCandidates returns articles published since the cutoff whose title contains any token.
func (r *SQLRepository) RecentCandidates(ctx context.Context, tokens []string, since time.Time, limit int) ([]domain.StoredArticle, error) {
	query := r.sb.Select(articleColumns...).From("articles").
		Where(sq.GtOrEq{"published_at": since.UTC()}).
		OrderBy("published_at DESC")
	if len(tokens) > 0 {
		match := sq.Or{}
		for _, tok := range tokens {
			match = append(match, sq.Like{"LOWER(title)": "%" + tok + "%"})
		}
		query = query.Where(match)
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	rows, err := query.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	var out []domain.StoredArticle
	for rows.Next() {
		var a domain.StoredArticle
		if err := rows.Scan(&a.ContentHash, &a.Title, &a.Description, &a.Link, &a.PublishedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, a)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return out, nil
}

// WriteErrors appends error records in one statement. Records already stored under the same
// id are skipped, so a replayed batch is harmless.
func (r *SQLRepository) WriteErrors(ctx context.Context, records []domain.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	insert := r.sb.Insert("ingest_errors").
		Columns("id", "identifier", "error_type", "message", "metadata", "occurred_at")
	for _, rec := range records {
		meta, err := json.Marshal(nonNilMap(rec.Metadata))
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", rec.ID, err)
		}
		insert = insert.Values(rec.ID, rec.Identifier, string(rec.ErrorType), rec.Message, string(meta), rec.Timestamp.UTC())
	}
	if _, err := insert.Suffix("ON CONFLICT (id) DO NOTHING").ExecContext(ctx); err != nil {
		return fmt.Errorf("insert error records: %w", err)
	}
	return nil
}

// WriteMetrics appends batch metrics in one statement, skipping ids already stored.
// Metrics without an id get a fresh one.
func (r *SQLRepository) WriteMetrics(ctx context.Context, metrics []domain.BatchMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	insert := r.sb.Insert("batch_metrics").
		Columns("id", "source", "batch_index", "processed", "failed", "elapsed_ms", "memory_before", "memory_after", "memory_delta", "recorded_at")
	for _, m := range metrics {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		insert = insert.Values(id, m.Source, m.BatchIndex, m.Processed, m.Failed, m.ElapsedMs,
			int64(m.MemoryStart), int64(m.MemoryEnd), m.MemoryDelta, m.RecordedAt.UTC())
	}
	if _, err := insert.Suffix("ON CONFLICT (id) DO NOTHING").ExecContext(ctx); err != nil {
		return fmt.Errorf("insert batch metrics: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
