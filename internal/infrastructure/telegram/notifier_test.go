package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"FeedIngestor/internal/domain"
)

func summary() domain.RunSummary {
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s := domain.RunSummary{RunID: "run-1", StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	s.Add(domain.FeedReport{Name: "world", Success: true, Fetched: 10, Stored: 8, Duplicate: 2})
	s.Add(domain.FeedReport{Name: "regional"})
	return s
}

func TestPublishSummaryPostsForm(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		path string
		form map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		path = r.URL.Path
		form = map[string]string{"chat_id": r.PostForm.Get("chat_id"), "text": r.PostForm.Get("text"), "parse_mode": r.PostForm.Get("parse_mode")}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("token", "42")
	n.apiBase = srv.URL

	if err := n.PublishSummary(context.Background(), summary()); err != nil {
		t.Fatalf("PublishSummary returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/bottoken/sendMessage" {
		t.Fatalf("unexpected path %s", path)
	}
	if form["chat_id"] != "42" || form["parse_mode"] != "Markdown" {
		t.Fatalf("unexpected form %v", form)
	}
	if !strings.Contains(form["text"], "failed: regional") || !strings.Contains(form["text"], "1 ok, 1 failed") {
		t.Fatalf("unexpected text %q", form["text"])
	}
}

func TestPublishSummaryErrors(t *testing.T) {
	t.Parallel()

	if err := NewNotifier("", "").PublishSummary(context.Background(), summary()); err == nil {
		t.Fatalf("expected misconfiguration error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewNotifier("token", "42")
	n.apiBase = srv.URL
	if err := n.PublishSummary(context.Background(), summary()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected telegram status error, got %v", err)
	}
}
