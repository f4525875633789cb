package storage

import (
	"context"
	"path/filepath"
	"testing"

	"FeedIngestor/internal/domain"
)

func openSQLite(t *testing.T) *SQLRepository {
	t.Helper()
	db, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "feeds.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLRepository(db, SQLite)
}

func countRows(t *testing.T, repo *SQLRepository, table string) int {
	t.Helper()
	var n int
	if err := repo.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSQLiteLinkUniquenessIgnoresCase(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	res, err := repo.UpsertBatch(ctx, []domain.Article{
		{ContentHash: "h1", Link: "https://news.example.com/Strike", Title: "Strike on depot", Source: "world", PublishedAt: published, FetchedAt: published},
		{ContentHash: "h2", Link: "https://NEWS.example.com/strike", Title: "Strike on depot.", Source: "world", PublishedAt: published, FetchedAt: published},
	})
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 1 || len(res.Failed) != 0 {
		t.Fatalf("expected one insert and one skip, got %+v", res)
	}
	if got := countRows(t, repo, "articles"); got != 1 {
		t.Fatalf("expected 1 article row, got %d", got)
	}
}

func TestSQLiteRecordReplayIsHarmless(t *testing.T) {
	repo := openSQLite(t)
	ctx := context.Background()

	errs := []domain.ErrorRecord{
		{ID: "e1", Identifier: "world", ErrorType: domain.KindTimeout, Message: "timed out", Timestamp: published},
	}
	metrics := []domain.BatchMetrics{{ID: "m1", Source: "world", Processed: 25, RecordedAt: published}}

	for i := 0; i < 2; i++ {
		if err := repo.WriteErrors(ctx, errs); err != nil {
			t.Fatalf("WriteErrors() pass %d error = %v", i, err)
		}
		if err := repo.WriteMetrics(ctx, metrics); err != nil {
			t.Fatalf("WriteMetrics() pass %d error = %v", i, err)
		}
	}

	more := append(errs, domain.ErrorRecord{ID: "e2", Identifier: "world", ErrorType: domain.KindHTTP, Message: "404", Timestamp: published})
	if err := repo.WriteErrors(ctx, more); err != nil {
		t.Fatalf("WriteErrors() with a replayed record error = %v", err)
	}

	if got := countRows(t, repo, "ingest_errors"); got != 2 {
		t.Fatalf("expected 2 error rows, got %d", got)
	}
	if got := countRows(t, repo, "batch_metrics"); got != 1 {
		t.Fatalf("expected 1 metrics row, got %d", got)
	}
}
