package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func baseArticle() domain.Article {
	return domain.Article{
		Title:       "Strike hits Gaza hospital",
		Link:        "https://news.example.com/world/strike",
		Description: "Casualties were reported after the overnight strike.",
		PublishedAt: now.Add(-2 * time.Hour),
		Source:      "world",
	}
}

func newOfflineValidator() *Validator {
	return New(Rules{}, nil, clock.NewFake(now))
}

func TestContentHashInvariance(t *testing.T) {
	t.Parallel()

	a := baseArticle()
	h := ContentHash(a)

	variants := []domain.Article{
		func() domain.Article { b := a; b.Title = "STRIKE hits gaza HOSPITAL"; return b }(),
		func() domain.Article { b := a; b.Title = "<b>Strike</b> hits   Gaza hospital"; return b }(),
		func() domain.Article { b := a; b.Description = "  <p>Casualties were reported</p> after the overnight strike. "; return b }(),
		func() domain.Article { b := a; b.Link = "HTTPS://NEWS.EXAMPLE.COM/world/strike"; return b }(),
		func() domain.Article { b := a; b.PublishedAt = a.PublishedAt.Add(time.Hour); return b }(),
	}
	for i, v := range variants {
		if got := ContentHash(v); got != h {
			t.Fatalf("variant %d changed the hash", i)
		}
	}

	changed := []domain.Article{
		func() domain.Article { b := a; b.Link = "https://news.example.com/world/other"; return b }(),
		func() domain.Article { b := a; b.PublishedAt = a.PublishedAt.Add(-24 * time.Hour); return b }(),
		func() domain.Article { b := a; b.Title = "Strike misses Gaza hospital"; return b }(),
	}
	for i, v := range changed {
		if got := ContentHash(v); got == h {
			t.Fatalf("semantic change %d kept the hash", i)
		}
	}
	if len(h) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", h)
	}
}

func TestContentHashTrailingPeriodAndCase(t *testing.T) {
	t.Parallel()

	a := baseArticle()
	b := baseArticle()
	b.Title = "Strike hits Gaza Hospital."
	if ContentHash(a) != ContentHash(b) {
		t.Fatalf("expected equal hashes for punctuation/case variants")
	}
}

func TestValidateTitleLength(t *testing.T) {
	t.Parallel()

	v := newOfflineValidator()

	short := baseArticle()
	short.Title = "Hi"
	res := v.Validate(context.Background(), short)
	if res.Valid || len(res.Errors) != 1 || res.Errors[0] != "title must be at least 3 characters" {
		t.Fatalf("unexpected result for short title: %+v", res)
	}

	long := baseArticle()
	long.Title = strings.Repeat("a", 501)
	res = v.Validate(context.Background(), long)
	if res.Valid || len(res.Errors) != 1 || res.Errors[0] != "title must be at most 500 characters" {
		t.Fatalf("unexpected result for long title: %+v", res)
	}

	exact := baseArticle()
	exact.Title = strings.Repeat("a", 500)
	if res := v.Validate(context.Background(), exact); !res.Valid {
		t.Fatalf("500 characters must be valid: %+v", res)
	}
}

func TestValidateLinkRules(t *testing.T) {
	t.Parallel()

	v := newOfflineValidator()
	cases := []struct {
		name   string
		link   string
		reason string
	}{
		{name: "malformed", link: "not a url", reason: "not a valid http(s) url"},
		{name: "ftp", link: "ftp://files.example.com/a", reason: "not a valid http(s) url"},
		{name: "shortener", link: "https://bit.ly/abc", reason: "bit.ly is denied"},
		{name: "shortener subdomain", link: "https://www.tinyurl.com/abc", reason: "tinyurl.com is denied"},
		{name: "executable", link: "https://news.example.com/payload.EXE", reason: "denied file type .exe"},
		{name: "archive", link: "https://news.example.com/dump.zip?x=1", reason: "denied file type .zip"},
	}
	for _, tc := range cases {
		a := baseArticle()
		a.Link = tc.link
		res := v.Validate(context.Background(), a)
		if res.Valid || res.URLValidation.Valid {
			t.Fatalf("%s: expected invalid link, got %+v", tc.name, res)
		}
		if !strings.Contains(strings.Join(res.Errors, ";"), tc.reason) {
			t.Fatalf("%s: expected reason %q in %v", tc.name, tc.reason, res.Errors)
		}
	}
}

func TestValidateWarnings(t *testing.T) {
	t.Parallel()

	v := newOfflineValidator()

	a := baseArticle()
	a.Description = "short"
	a.PublishedAt = now.Add(48 * time.Hour)
	res := v.Validate(context.Background(), a)
	if !res.Valid {
		t.Fatalf("warnings must not invalidate: %+v", res)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected description and future warnings, got %v", res.Warnings)
	}

	old := baseArticle()
	old.PublishedAt = now.AddDate(-2, 0, 0)
	res = v.Validate(context.Background(), old)
	if len(res.Warnings) != 1 || res.Warnings[0] != "publish date is older than 365 days" {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
}

func TestValidateReachability(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		methods = append(methods, r.Method)
		mu.Unlock()
		switch r.URL.Path {
		case "/live":
			w.WriteHeader(http.StatusOK)
		case "/nohead":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	checker := NewHeadChecker(srv.Client(), time.Second, 1000, "test-agent")
	v := New(Rules{CheckReachability: true}, checker, clock.NewFake(now))

	for path, wantValid := range map[string]bool{"/live": true, "/nohead": true, "/dead": false} {
		a := baseArticle()
		a.Link = srv.URL + path
		res := v.Validate(context.Background(), a)
		if res.Valid != wantValid {
			t.Fatalf("%s: expected valid=%v, got %+v", path, wantValid, res)
		}
		if !wantValid && !strings.Contains(res.Errors[0], "link is unreachable: HTTP 404") {
			t.Fatalf("%s: unexpected errors %v", path, res.Errors)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for _, m := range methods {
		if m != http.MethodHead {
			t.Fatalf("expected HEAD requests only, got %v", methods)
		}
	}
}
