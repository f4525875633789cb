package storage

import (
	"context"
	"testing"
	"time"

	"FeedIngestor/internal/domain"
)

func TestMemoryRepositoryConflictsOnHashAndLink(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()

	res, err := repo.UpsertBatch(ctx, []domain.Article{
		{ContentHash: "h1", Link: "https://news.example.com/A", Title: "Strike on depot", PublishedAt: published},
		{ContentHash: "h1", Link: "https://news.example.com/other", Title: "Same hash", PublishedAt: published},
		{ContentHash: "h2", Link: "https://NEWS.example.com/a", Title: "Same link", PublishedAt: published},
	})
	if err != nil {
		t.Fatalf("UpsertBatch() error = %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	byLink, _ := repo.FindByLink(ctx, "https://news.example.com/a")
	if byLink == nil || byLink.ContentHash != "h1" {
		t.Fatalf("expected case-insensitive link match, got %+v", byLink)
	}
}

func TestMemoryRepositoryRecentCandidates(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	_, _ = repo.UpsertBatch(ctx, []domain.Article{
		{ContentHash: "old", Link: "https://a.example.com/1", Title: "Depot strike", PublishedAt: published.Add(-100 * time.Hour)},
		{ContentHash: "new", Link: "https://a.example.com/2", Title: "Depot strike again", PublishedAt: published},
		{ContentHash: "mid", Link: "https://a.example.com/3", Title: "Strike continues", PublishedAt: published.Add(-time.Hour)},
		{ContentHash: "other", Link: "https://a.example.com/4", Title: "Weather report", PublishedAt: published},
	})

	got, err := repo.RecentCandidates(ctx, []string{"strike"}, published.Add(-72*time.Hour), 10)
	if err != nil {
		t.Fatalf("RecentCandidates() error = %v", err)
	}
	if len(got) != 2 || got[0].ContentHash != "new" || got[1].ContentHash != "mid" {
		t.Fatalf("unexpected candidates %+v", got)
	}
}
