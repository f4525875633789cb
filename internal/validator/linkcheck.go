package validator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"FeedIngestor/internal/domain"
)

const (
	defaultLinkTimeout  = 5 * time.Second
	defaultChecksPerSec = 5
	maxLinkRedirects    = 5
)

// LinkChecker reports whether an article link currently answers.
type LinkChecker interface {
	Check(ctx context.Context, link string) domain.URLValidation
}

// HeadChecker issues throttled HEAD requests.
type HeadChecker struct {
	client    *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
}

// NewHeadChecker builds a HeadChecker; perSecond bounds the HEAD rate across a run.
func NewHeadChecker(client *http.Client, timeout time.Duration, perSecond float64, userAgent string) *HeadChecker {
	c := &http.Client{}
	if client != nil {
		copied := *client
		c = &copied
	}
	c.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxLinkRedirects {
			return fmt.Errorf("stopped after %d redirects", maxLinkRedirects)
		}
		return nil
	}
	if timeout <= 0 {
		timeout = defaultLinkTimeout
	}
	if perSecond <= 0 {
		perSecond = defaultChecksPerSec
	}
	return &HeadChecker{
		client:    c,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Check treats 2xx, 3xx and 405 (HEAD not allowed) as reachable.
func (h *HeadChecker) Check(ctx context.Context, link string) domain.URLValidation {
	if err := h.limiter.Wait(ctx); err != nil {
		return domain.URLValidation{Valid: true, Reason: fmt.Sprintf("link check throttled: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, http.NoBody)
	if err != nil {
		return domain.URLValidation{Valid: true, Reason: fmt.Sprintf("build request: %v", err)}
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return domain.URLValidation{Valid: true, Reason: err.Error()}
	}
	defer resp.Body.Close()

	reachable := resp.StatusCode < http.StatusBadRequest || resp.StatusCode == http.StatusMethodNotAllowed
	out := domain.URLValidation{Valid: true, Reachable: reachable, StatusCode: resp.StatusCode}
	if !reachable {
		out.Reason = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return out
}
