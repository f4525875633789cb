package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

// MemoryRepository keeps everything in process; used by the memory driver and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	articles map[string]domain.Article
	links    map[string]string
	errs     []domain.ErrorRecord
	metrics  []domain.BatchMetrics
}

var (
	_ ports.ArticleStore = (*MemoryRepository)(nil)
	_ ports.RecordStore  = (*MemoryRepository)(nil)
)

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		articles: map[string]domain.Article{},
		links:    map[string]string{},
	}
}

// UpsertBatch mirrors the SQL conflict-ignore semantics on hash and link.
func (r *MemoryRepository) UpsertBatch(_ context.Context, articles []domain.Article) (domain.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := domain.UpsertResult{Failed: map[string]error{}}
	for _, a := range articles {
		link := strings.ToLower(a.Link)
		if _, ok := r.articles[a.ContentHash]; ok {
			result.Skipped++
			continue
		}
		if _, ok := r.links[link]; ok {
			result.Skipped++
			continue
		}
		r.articles[a.ContentHash] = a
		r.links[link] = a.ContentHash
		result.Inserted++
		result.InsertedHashes = append(result.InsertedHashes, a.ContentHash)
	}
	return result, nil
}

// FindByHash returns nil when absent.
func (r *MemoryRepository) FindByHash(_ context.Context, hash string) (*domain.StoredArticle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.articles[hash]
	if !ok {
		return nil, nil
	}
	stored := toStored(a)
	return &stored, nil
}

// FindByLink returns nil when absent.
func (r *MemoryRepository) FindByLink(_ context.Context, link string) (*domain.StoredArticle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hash, ok := r.links[strings.ToLower(link)]
	if !ok {
		return nil, nil
	}
	stored := toStored(r.articles[hash])
	return &stored, nil
}

// RecentCandidates matches tokens against the lower-cased title, newest first.
func (r *MemoryRepository) RecentCandidates(_ context.Context, tokens []string, since time.Time, limit int) ([]domain.StoredArticle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.StoredArticle
	for _, a := range r.articles {
		if a.PublishedAt.Before(since) || !containsAny(strings.ToLower(a.Title), tokens) {
			continue
		}
		out = append(out, toStored(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WriteErrors implements ports.RecordStore.
func (r *MemoryRepository) WriteErrors(_ context.Context, records []domain.ErrorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, records...)
	return nil
}

// WriteMetrics implements ports.RecordStore.
func (r *MemoryRepository) WriteMetrics(_ context.Context, metrics []domain.BatchMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, metrics...)
	return nil
}

// Articles returns every stored article ordered by hash.
func (r *MemoryRepository) Articles() []domain.Article {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Article, 0, len(r.articles))
	for _, a := range r.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentHash < out[j].ContentHash })
	return out
}

// Errors returns a copy of the written error records.
func (r *MemoryRepository) Errors() []domain.ErrorRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.ErrorRecord(nil), r.errs...)
}

// Metrics returns a copy of the written batch metrics.
func (r *MemoryRepository) Metrics() []domain.BatchMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.BatchMetrics(nil), r.metrics...)
}

func toStored(a domain.Article) domain.StoredArticle {
	return domain.StoredArticle{
		ContentHash: a.ContentHash,
		Title:       a.Title,
		Description: a.Description,
		Link:        a.Link,
		PublishedAt: a.PublishedAt,
	}
}

func containsAny(s string, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
