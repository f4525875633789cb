package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/logging"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	byHash     map[string]domain.StoredArticle
	byLink     map[string]domain.StoredArticle
	candidates []domain.StoredArticle
	hashErr    error
	candErr    error
	lastTokens []string
}

func (s *stubStore) UpsertBatch(context.Context, []domain.Article) (domain.UpsertResult, error) {
	return domain.UpsertResult{}, nil
}

func (s *stubStore) FindByHash(_ context.Context, hash string) (*domain.StoredArticle, error) {
	if s.hashErr != nil {
		return nil, s.hashErr
	}
	if a, ok := s.byHash[hash]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *stubStore) FindByLink(_ context.Context, link string) (*domain.StoredArticle, error) {
	if a, ok := s.byLink[link]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *stubStore) RecentCandidates(_ context.Context, tokens []string, _ time.Time, _ int) ([]domain.StoredArticle, error) {
	s.lastTokens = tokens
	return s.candidates, s.candErr
}

type stubSeen struct {
	hashes map[string]bool
}

func (s *stubSeen) Seen(_ context.Context, hash string) (bool, error) { return s.hashes[hash], nil }
func (s *stubSeen) MarkSeen(_ context.Context, hash string) error {
	s.hashes[hash] = true
	return nil
}

func newDedup(store *stubStore, seen *stubSeen) *Deduplicator {
	deps := Deps{Clock: clock.NewFake(now), Logger: logging.Discard()}
	if store != nil {
		deps.Store = store
	}
	if seen != nil {
		deps.Seen = seen
	}
	return New(deps)
}

func article(title, desc, link, hash string) domain.Article {
	return domain.Article{Title: title, Description: desc, Link: link, ContentHash: hash, PublishedAt: now}
}

func TestSimilarityBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	base := "abcdefghijklmnopqrst"
	threeOff := "xyzdefghijklmnopqrst"
	fourOff := "wxyzefghijklmnopqrst"

	at := Similarity(base, threeOff)
	assert.InDelta(t, 0.85, at, 1e-9)
	assert.True(t, AtLeast(at, 0.85))

	below := Similarity(base, fourOff)
	assert.InDelta(t, 0.80, below, 1e-9)
	assert.False(t, AtLeast(below, 0.85))

	d := newDedup(nil, nil)
	d.Remember(article(base, "", "https://a.example.com/1", "h1"))

	res, err := d.CheckDuplicates(context.Background(), article(threeOff, "", "https://b.example.com/2", "h2"), "h2")
	require.NoError(t, err)
	assert.True(t, res.HasSimilar)
	assert.False(t, res.IsDuplicate)
	require.Len(t, res.SimilarArticles, 1)
	assert.Equal(t, "h1", res.SimilarArticles[0].ContentHash)

	res, err = d.CheckDuplicates(context.Background(), article(fourOff, "", "https://c.example.com/3", "h3"), "h3")
	require.NoError(t, err)
	assert.False(t, res.HasSimilar)
}

func TestInRunCandidatesHonourWindow(t *testing.T) {
	t.Parallel()

	d := newDedup(nil, nil)
	stale := article("Strike hits Gaza hospital", "", "https://a.example.com/old", "h-old")
	stale.PublishedAt = now.Add(-96 * time.Hour)
	d.Remember(stale)

	res, err := d.CheckDuplicates(context.Background(), article("Strike hits Gaza hospitals", "", "https://b.example.com/new", "h-new"), "h-new")
	require.NoError(t, err)
	assert.False(t, res.HasSimilar, "an article published outside the window is not a candidate")

	d.Remember(article("Ceasefire talks resume in Cairo", "", "https://a.example.com/fresh", "h-fresh"))
	res, err = d.CheckDuplicates(context.Background(), article("Ceasefire talks resume in Cairo.", "", "https://b.example.com/other", "h-other"), "h-other")
	require.NoError(t, err)
	assert.True(t, res.HasSimilar)
}

func TestCombinedWeighting(t *testing.T) {
	t.Parallel()

	w := Weights{Title: 0.7, Description: 0.3}
	assert.InDelta(t, 0.7, Combined("same", "aaaa", "same", "bbbb", w), 1e-9)
	assert.InDelta(t, 1.0, Combined("same", "", "same", "bbbb", w), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
}

func TestSameLinkVariantIsExactDuplicate(t *testing.T) {
	t.Parallel()

	d := newDedup(nil, nil)
	first := article("Strike hits Gaza hospital", "Casualties reported overnight", "https://news.example.com/a", "hash-a")
	d.Remember(first)

	second := article("Strike hits Gaza Hospital.", "Casualties reported overnight", "https://news.example.com/a", "hash-a")
	res, err := d.CheckDuplicates(context.Background(), second, "hash-a")
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, []string{"hash-a"}, res.ExactDuplicates)
	assert.Equal(t, []string{"hash-a"}, res.URLDuplicates)
	assert.False(t, res.HasSimilar, "an exact match must not be reported as merely similar")
}

func TestStoreAndSeenCacheChecks(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		byHash: map[string]domain.StoredArticle{"stored": {ContentHash: "stored"}},
		byLink: map[string]domain.StoredArticle{"https://news.example.com/old": {ContentHash: "old-hash"}},
		candidates: []domain.StoredArticle{
			{ContentHash: "near", Title: "Ceasefire talks resume in Cairo", Link: "https://other.example.com/x"},
			{ContentHash: "far", Title: "Football results", Link: "https://sport.example.com/y"},
		},
	}
	seen := &stubSeen{hashes: map[string]bool{"cached": true}}
	d := newDedup(store, seen)
	ctx := context.Background()

	res, err := d.CheckDuplicates(ctx, article("Anything", "", "https://news.example.com/new", "stored"), "stored")
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)

	res, err = d.CheckDuplicates(ctx, article("Anything", "", "https://news.example.com/new", "cached"), "cached")
	require.NoError(t, err)
	assert.Equal(t, []string{"cached"}, res.ExactDuplicates)

	res, err = d.CheckDuplicates(ctx, article("Retitled story", "", "https://news.example.com/old", "fresh"), "fresh")
	require.NoError(t, err)
	assert.Equal(t, []string{"old-hash"}, res.URLDuplicates)
	assert.Empty(t, res.ExactDuplicates)

	res, err = d.CheckDuplicates(ctx, article("Ceasefire talks resume in Cairo!", "", "https://news.example.com/c", "new"), "new")
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
	require.Len(t, res.SimilarArticles, 1)
	assert.Equal(t, "near", res.SimilarArticles[0].ContentHash)
	assert.Contains(t, store.lastTokens, "ceasefire")

	require.NoError(t, d.MarkSeen(ctx, []string{"kept"}))
	assert.True(t, seen.hashes["kept"])
}

func TestChecksAreIndependentOnStoreFailure(t *testing.T) {
	t.Parallel()

	store := &stubStore{
		hashErr: errors.New("db down"),
		byLink:  map[string]domain.StoredArticle{"https://news.example.com/old": {ContentHash: "old-hash"}},
		candErr: errors.New("timeout"),
	}
	d := newDedup(store, nil)

	res, err := d.CheckDuplicates(context.Background(), article("Some headline here", "", "https://news.example.com/old", "x"), "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "db down") && strings.Contains(err.Error(), "timeout"))
	assert.True(t, res.IsDuplicate, "link check must still run when the hash lookup fails")
}

func TestRecentSetIsBounded(t *testing.T) {
	t.Parallel()

	d := New(Deps{Clock: clock.NewFake(now), Logger: logging.Discard(), Options: Options{RecentCapacity: 2}})
	ctx := context.Background()
	for _, h := range []string{"a", "b", "c"} {
		d.Remember(article("Title "+h, "", "https://x.example.com/"+h, h))
	}
	assert.Equal(t, 2, d.RecentCount())

	res, err := d.CheckDuplicates(ctx, article("Other", "", "https://x.example.com/a", "a"), "a")
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate, "evicted entries are forgotten")

	d.Reset()
	assert.Equal(t, 0, d.RecentCount())
}
