package normalizer

import (
	"strings"
	"testing"
	"time"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
)

var fixedNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(Options{}, clock.NewFake(fixedNow))
}

func TestNormalizeCleansFields(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("EET", 2*3600))
	item := domain.RawItem{
		Title:      "  <b>Strike</b>   hits Gaza&nbsp;hospital ",
		Link:       " https://news.example.com/a ",
		Summary:    "<p>Casualties</p><p>reported</p>",
		Published:  &published,
		Categories: []string{"Conflict", "conflict", " ", "Middle East", "a", "b", "c", "d"},
		Author:     "<i>Desk</i>",
	}
	feed := domain.FeedConfig{Name: "world", Category: "world"}

	article := newTestNormalizer().Normalize(item, feed)
	if article == nil {
		t.Fatalf("expected article")
	}
	if article.Title != "Strike hits Gaza hospital" {
		t.Fatalf("unexpected title %q", article.Title)
	}
	if article.Link != "https://news.example.com/a" {
		t.Fatalf("unexpected link %q", article.Link)
	}
	if article.Description != "Casualties reported" {
		t.Fatalf("unexpected description %q", article.Description)
	}
	if !article.PublishedAt.Equal(published) || article.PublishedAt.Location() != time.UTC {
		t.Fatalf("unexpected publish time %v", article.PublishedAt)
	}
	if strings.Join(article.Tags, ",") != "Conflict,Middle East,a,b,c" {
		t.Fatalf("unexpected tags %v", article.Tags)
	}
	if article.Author != "Desk" || article.Source != "world" || article.Category != "world" {
		t.Fatalf("unexpected metadata %+v", article)
	}
	if !article.FetchedAt.Equal(fixedNow) {
		t.Fatalf("unexpected fetched at %v", article.FetchedAt)
	}
}

func TestNormalizeDropsItemsWithoutTitleOrLink(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	cases := []domain.RawItem{
		{Title: "<p> </p>", Link: "https://news.example.com/a"},
		{Title: "Headline"},
		{Title: "Headline", GUID: "tag:news.example.com,2026:123"},
	}
	for i, item := range cases {
		if got := n.Normalize(item, domain.FeedConfig{Name: "world"}); got != nil {
			t.Fatalf("case %d: expected nil, got %+v", i, got)
		}
	}
}

func TestNormalizeFallsBackToGUIDAndContent(t *testing.T) {
	t.Parallel()

	article := newTestNormalizer().Normalize(domain.RawItem{
		Title:   "Headline",
		GUID:    "https://news.example.com/guid-link",
		Content: "<div>Full body text</div>",
	}, domain.FeedConfig{Name: "world"})
	if article == nil {
		t.Fatalf("expected article")
	}
	if article.Link != "https://news.example.com/guid-link" {
		t.Fatalf("unexpected link %q", article.Link)
	}
	if article.Description != "Full body text" {
		t.Fatalf("unexpected description %q", article.Description)
	}
}

func TestNormalizeDates(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	feed := domain.FeedConfig{Name: "world"}

	parsed := n.Normalize(domain.RawItem{Title: "Headline", Link: "https://x.example.com", PublishedRaw: "2026-02-28 14:30:00"}, feed)
	if want := time.Date(2026, 2, 28, 14, 30, 0, 0, time.UTC); !parsed.PublishedAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, parsed.PublishedAt)
	}

	fallback := n.Normalize(domain.RawItem{Title: "Headline", Link: "https://x.example.com", PublishedRaw: "sometime last week"}, feed)
	if !fallback.PublishedAt.Equal(fixedNow) {
		t.Fatalf("expected now fallback, got %v", fallback.PublishedAt)
	}
}

func TestNormalizeClampsLengths(t *testing.T) {
	t.Parallel()

	n := New(Options{MaxDescriptionLength: 10}, clock.NewFake(fixedNow))
	article := n.Normalize(domain.RawItem{
		Title:   strings.Repeat("x", 600),
		Link:    "https://x.example.com",
		Summary: strings.Repeat("y", 50),
	}, domain.FeedConfig{Name: "world"})

	if len([]rune(article.Title)) != 500 {
		t.Fatalf("expected title clamped to 500, got %d", len([]rune(article.Title)))
	}
	if article.Description != strings.Repeat("y", 10) {
		t.Fatalf("unexpected description %q", article.Description)
	}
}
