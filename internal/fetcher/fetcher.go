package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
	"FeedIngestor/internal/ratelimit"
)

const (
	defaultUserAgent    = "FeedIngestor/1.0 (+conflict-monitor)"
	acceptHeader        = "application/rss+xml, application/xml, text/xml"
	defaultMaxRedirects = 5
	defaultMaxBodyBytes = 10 << 20
	defaultTimeout      = 10 * time.Second
	minLimiterWait      = 100 * time.Millisecond
)

// Limiter is the admission control consulted before every dispatch.
type Limiter interface {
	CanMakeRequest() bool
	WaitDuration() time.Duration
	RecordRequest()
	RecordSuccess()
	RecordFailure()
}

// Deps wires the fetcher's collaborators.
type Deps struct {
	Client       *http.Client
	Limiter      Limiter
	Clock        clock.Clock
	Errors       ports.ErrorRecorder
	Logger       *slog.Logger
	UserAgent    string
	MaxRedirects int
	MaxBodyBytes int64
	// OnAttempt observes every dispatched attempt, successful or not.
	OnAttempt func(feed string, attempt domain.FetchAttempt)
}

// Fetcher downloads and parses feeds with retry, backoff and URL rotation.
type Fetcher struct {
	client       *http.Client
	limiter      Limiter
	clock        clock.Clock
	errors       ports.ErrorRecorder
	logger       *slog.Logger
	userAgent    string
	maxBodyBytes int64
	onAttempt    func(string, domain.FetchAttempt)
}

// New builds a Fetcher. The client is copied so the redirect cap does not leak to other users.
func New(deps Deps) *Fetcher {
	client := &http.Client{}
	if deps.Client != nil {
		copied := *deps.Client
		client = &copied
	}
	maxRedirects := deps.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = defaultMaxRedirects
	}
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}

	f := &Fetcher{
		client:       client,
		limiter:      deps.Limiter,
		clock:        deps.Clock,
		errors:       deps.Errors,
		logger:       deps.Logger,
		userAgent:    deps.UserAgent,
		maxBodyBytes: deps.MaxBodyBytes,
		onAttempt:    deps.OnAttempt,
	}
	if f.limiter == nil {
		f.limiter = ratelimit.New(ratelimit.DefaultConfig(), deps.Clock, deps.Logger)
	}
	if f.clock == nil {
		f.clock = clock.Real{}
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.maxBodyBytes <= 0 {
		f.maxBodyBytes = defaultMaxBodyBytes
	}
	return f
}

// FetchFeedWithRetry makes at most MaxRetries+1 attempts. Every failed attempt is recorded and
// the next one moves to the next resolvable candidate URL. On success rf.ActiveURL is the URL
// that served. Failures are reported in the result, never returned as a panic or error.
func (f *Fetcher) FetchFeedWithRetry(ctx context.Context, rf *domain.ResolvedFeed) domain.FetchResult {
	feed := rf.Feed
	candidates := rf.Candidates
	if len(candidates) == 0 && rf.ActiveURL != "" {
		candidates = []string{rf.ActiveURL}
	}
	if len(candidates) == 0 {
		return domain.FetchResult{Err: fmt.Errorf("feed %s has no resolvable url", feed.Name)}
	}

	next := 0
	for i, c := range candidates {
		if c == rf.ActiveURL {
			next = i
			break
		}
	}

	timeout := feed.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := f.logger.With("feed", feed.Name)
	started := f.clock.Now()
	var (
		attempts []domain.FetchAttempt
		lastErr  error
	)

	for attempt := 0; attempt <= feed.Retry.MaxRetries; {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		if !f.limiter.CanMakeRequest() {
			wait := f.limiter.WaitDuration()
			if wait < minLimiterWait {
				wait = minLimiterWait
			}
			logger.Debug("rate limiter refused attempt, waiting", "attempt", attempt, "wait", wait)
			if err := f.clock.Sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
			continue
		}

		url := candidates[next%len(candidates)]
		f.limiter.RecordRequest()
		began := f.clock.Now()
		title, items, err := f.fetchOnce(ctx, url, timeout)
		record := domain.FetchAttempt{Number: attempt + 1, URL: url, Elapsed: f.clock.Now().Sub(began)}

		if err == nil {
			f.limiter.RecordSuccess()
			attempts = append(attempts, record)
			f.observe(feed.Name, record)
			rf.ActiveURL = url
			logger.Info("feed fetched", "url", url, "items", len(items), "attempts", len(attempts))
			return domain.FetchResult{
				Success:  true,
				Items:    items,
				Attempts: attempts,
				Metadata: domain.FeedMetadata{
					Title:     title,
					ItemCount: len(items),
					Elapsed:   f.clock.Now().Sub(started),
					ActiveURL: url,
					Attempts:  len(attempts),
				},
			}
		}

		f.limiter.RecordFailure()
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = classifyNetworkError(err, url)
		}
		record.Kind = fetchErr.Kind
		record.StatusCode = fetchErr.StatusCode
		attempts = append(attempts, record)
		f.observe(feed.Name, record)
		lastErr = fetchErr

		logger.Warn("feed attempt failed", "attempt", attempt+1, "url", url, "kind", fetchErr.Kind, "error", fetchErr.Cause)
		if f.errors != nil {
			f.errors.Record(ctx, feed.Name, fetchErr.Kind, fetchErr.Error(), map[string]any{
				"url":         url,
				"attempt":     attempt + 1,
				"status_code": fetchErr.StatusCode,
				"elapsed_ms":  record.Elapsed.Milliseconds(),
			})
		}

		if attempt == feed.Retry.MaxRetries {
			break
		}
		next++
		if _, err := ratelimit.Backoff(ctx, f.clock, attempt, feed.Retry.BaseDelay, feed.Retry.MaxDelay); err != nil {
			lastErr = err
			break
		}
		attempt++
	}

	return domain.FetchResult{
		Attempts: attempts,
		Err:      fmt.Errorf("failed after %d attempts: %w", len(attempts), lastErr),
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, timeout time.Duration) (string, []domain.RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", nil, &FetchError{Kind: domain.KindHTTP, URL: url, Cause: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, classifyNetworkError(err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", nil, classifyHTTPStatus(resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return "", nil, classifyNetworkError(fmt.Errorf("read body: %w", err), url)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return "", nil, classifyParseError(fmt.Errorf("body exceeds %d bytes", f.maxBodyBytes), url)
	}

	title, items, err := parseFeed(body)
	if err != nil {
		return "", nil, classifyParseError(err, url)
	}
	return title, items, nil
}

func (f *Fetcher) observe(feed string, attempt domain.FetchAttempt) {
	if f.onAttempt != nil {
		f.onAttempt(feed, attempt)
	}
}
