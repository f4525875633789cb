package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/logging"
)

type stubLookup struct {
	mu      sync.Mutex
	answers map[string][]string
	calls   map[string]int
}

func newStubLookup(answers map[string][]string) *stubLookup {
	return &stubLookup{answers: answers, calls: map[string]int{}}
}

func (s *stubLookup) Lookup(_ context.Context, host string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[host]++
	if addrs, ok := s.answers[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

func (s *stubLookup) Calls(host string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[host]
}

type recordedError struct {
	identifier string
	kind       domain.ErrorKind
}

type stubRecorder struct {
	mu      sync.Mutex
	records []recordedError
}

func (s *stubRecorder) Record(_ context.Context, identifier string, kind domain.ErrorKind, _ string, _ map[string]any) {
	s.mu.Lock()
	s.records = append(s.records, recordedError{identifier: identifier, kind: kind})
	s.mu.Unlock()
}

func TestResolveCachesSuccessForTTL(t *testing.T) {
	lookup := newStubLookup(map[string][]string{"feeds.example.com": {"203.0.113.10"}})
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := New(Deps{Lookup: lookup.Lookup, Clock: fake, Logger: logging.Discard()})

	first := cache.Resolve(context.Background(), "feeds.example.com")
	if !first.Success || first.Address != "203.0.113.10" || first.Cached {
		t.Fatalf("unexpected first result: %+v", first)
	}

	fake.Advance(4 * time.Minute)
	second := cache.Resolve(context.Background(), "FEEDS.example.com")
	if !second.Cached || lookup.Calls("feeds.example.com") != 1 {
		t.Fatalf("expected cached result, calls=%d", lookup.Calls("feeds.example.com"))
	}

	fake.Advance(2 * time.Minute)
	cache.Resolve(context.Background(), "feeds.example.com")
	if lookup.Calls("feeds.example.com") != 2 {
		t.Fatalf("expected re-resolution after TTL, calls=%d", lookup.Calls("feeds.example.com"))
	}
}

func TestResolveCachesFailureForShorterTTL(t *testing.T) {
	lookup := newStubLookup(nil)
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := New(Deps{Lookup: lookup.Lookup, Clock: fake, Logger: logging.Discard()})

	if res := cache.Resolve(context.Background(), "down.example.com"); res.Success || res.Err == nil {
		t.Fatalf("expected failure, got %+v", res)
	}
	fake.Advance(30 * time.Second)
	if res := cache.Resolve(context.Background(), "down.example.com"); !res.Cached {
		t.Fatalf("expected cached failure, got %+v", res)
	}
	fake.Advance(31 * time.Second)
	cache.Resolve(context.Background(), "down.example.com")
	if lookup.Calls("down.example.com") != 2 {
		t.Fatalf("expected a second lookup after failure TTL, calls=%d", lookup.Calls("down.example.com"))
	}
}

func TestResolveIPLiteral(t *testing.T) {
	lookup := newStubLookup(nil)
	cache := New(Deps{Lookup: lookup.Lookup, Logger: logging.Discard()})

	res := cache.Resolve(context.Background(), "127.0.0.1")
	if !res.Success || res.Address != "127.0.0.1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if lookup.Calls("127.0.0.1") != 0 {
		t.Fatalf("ip literal must not be looked up")
	}
}

func TestResolveFeedWithFallback(t *testing.T) {
	lookup := newStubLookup(map[string][]string{
		"mirror.example.com": {"203.0.113.20"},
		"backup.example.com": {"203.0.113.30"},
	})
	cache := New(Deps{Lookup: lookup.Lookup, Logger: logging.Discard()})

	feed := domain.FeedConfig{
		Name:         "world",
		URL:          "https://gone.example.com/rss",
		FallbackURLs: []string{"https://mirror.example.com/rss", "https://backup.example.com/rss"},
	}
	resolved := cache.ResolveFeedWithFallback(context.Background(), feed)
	if resolved.Failed {
		t.Fatalf("expected resolution to succeed")
	}
	if resolved.ActiveURL != "https://mirror.example.com/rss" {
		t.Fatalf("unexpected active url %s", resolved.ActiveURL)
	}
	if len(resolved.Candidates) != 2 {
		t.Fatalf("expected two candidates, got %v", resolved.Candidates)
	}
}

func TestResolveFeedWithFallbackAllFail(t *testing.T) {
	recorder := &stubRecorder{}
	cache := New(Deps{Lookup: newStubLookup(nil).Lookup, Errors: recorder, Logger: logging.Discard()})

	resolved := cache.ResolveFeedWithFallback(context.Background(), domain.FeedConfig{
		Name:         "dead",
		URL:          "https://a.invalid/rss",
		FallbackURLs: []string{"https://b.invalid/rss"},
	})
	if !resolved.Failed || resolved.ActiveURL != "" {
		t.Fatalf("expected failed resolution, got %+v", resolved)
	}
	if len(recorder.records) != 1 || recorder.records[0].kind != domain.KindConnection || recorder.records[0].identifier != "dead" {
		t.Fatalf("unexpected error records: %+v", recorder.records)
	}
}
