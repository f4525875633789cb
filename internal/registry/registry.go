package registry

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"FeedIngestor/internal/config"
	"FeedIngestor/internal/domain"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 30 * time.Second
	defaultTimeout    = 10 * time.Second
)

// Registry keeps the configured feeds in declaration order together with the global policy.
type Registry struct {
	entries []config.FeedEntry
	policy  config.PolicyConfig
	fetch   config.FetchConfig
	logger  *slog.Logger
	feeds   map[string]domain.FeedConfig
	order   []string
	loaded  bool
}

// New builds a registry over raw feed entries. Nothing is validated until LoadFeeds.
func New(entries []config.FeedEntry, policy config.PolicyConfig, fetch config.FetchConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: entries,
		policy:  policy,
		fetch:   fetch,
		logger:  logger,
		feeds:   map[string]domain.FeedConfig{},
	}
}

// LoadFeeds validates every entry and returns the feeds in registry order.
// Any schema or allow-list violation is a *domain.ConfigError.
func (r *Registry) LoadFeeds() ([]domain.FeedConfig, error) {
	if r.loaded {
		return r.snapshot(), nil
	}

	feeds := make(map[string]domain.FeedConfig, len(r.entries))
	order := make([]string, 0, len(r.entries))
	for i, entry := range r.entries {
		feed, err := r.build(i, entry)
		if err != nil {
			return nil, err
		}
		if _, dup := feeds[feed.Name]; dup {
			return nil, &domain.ConfigError{Field: fmt.Sprintf("feeds[%d].name", i), Reason: fmt.Sprintf("duplicate feed name %q", feed.Name)}
		}
		feeds[feed.Name] = feed
		order = append(order, feed.Name)
	}

	r.feeds = feeds
	r.order = order
	r.loaded = true
	return r.snapshot(), nil
}

func (r *Registry) snapshot() []domain.FeedConfig {
	out := make([]domain.FeedConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.feeds[name])
	}
	return out
}

func (r *Registry) build(index int, entry config.FeedEntry) (domain.FeedConfig, error) {
	field := func(name string) string { return fmt.Sprintf("feeds[%d].%s", index, name) }

	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return domain.FeedConfig{}, &domain.ConfigError{Field: field("name"), Reason: "must not be empty"}
	}

	primary, err := r.checkURL(name, entry.URL)
	if err != nil {
		return domain.FeedConfig{}, &domain.ConfigError{Field: field("url"), Reason: err.Error()}
	}

	fallbacks := make([]string, 0, len(entry.FallbackURLs))
	for j, raw := range entry.FallbackURLs {
		u, err := r.checkURL(name, raw)
		if err != nil {
			return domain.FeedConfig{}, &domain.ConfigError{Field: field(fmt.Sprintf("fallbackUrls[%d]", j)), Reason: err.Error()}
		}
		fallbacks = append(fallbacks, u)
	}

	retry, err := r.retryPolicy(entry.Retry)
	if err != nil {
		return domain.FeedConfig{}, &domain.ConfigError{Field: field("retry"), Reason: err.Error()}
	}

	timeout := entry.Timeout
	if timeout < 0 {
		return domain.FeedConfig{}, &domain.ConfigError{Field: field("timeout"), Reason: "must not be negative"}
	}
	if timeout == 0 {
		timeout = r.fetch.DefaultTimeout
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	enabled := true
	if entry.Enabled != nil {
		enabled = *entry.Enabled
	}

	return domain.FeedConfig{
		Name:         name,
		URL:          primary,
		FallbackURLs: fallbacks,
		Category:     strings.TrimSpace(entry.Category),
		Enabled:      enabled,
		Retry:        retry,
		Timeout:      timeout,
	}, nil
}

// checkURL parses raw, upgrades http to https under enforcement and applies the allow-list.
func (r *Registry) checkURL(feed, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}

	if scheme == "http" && r.policy.EnforceHTTPS {
		r.logger.Warn("upgrading feed url to https", "feed", feed, "url", raw)
		scheme = "https"
	}
	u.Scheme = scheme

	if !r.allowed(u.Hostname()) {
		return "", fmt.Errorf("host %s is not in the allowed domains", u.Hostname())
	}
	return u.String(), nil
}

func (r *Registry) allowed(host string) bool {
	if len(r.policy.AllowedDomains) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range r.policy.AllowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (r *Registry) retryPolicy(entry config.RetryEntry) (domain.RetryPolicy, error) {
	policy := domain.RetryPolicy{MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay, MaxDelay: defaultMaxDelay}
	overlay(&policy, r.fetch.Retry)
	overlay(&policy, entry)

	switch {
	case policy.MaxRetries < 0:
		return policy, fmt.Errorf("maxRetries must not be negative")
	case policy.BaseDelay < 0 || policy.MaxDelay < 0:
		return policy, fmt.Errorf("delays must not be negative")
	case policy.MaxDelay < policy.BaseDelay:
		return policy, fmt.Errorf("maxDelay %s is below baseDelay %s", policy.MaxDelay, policy.BaseDelay)
	}
	return policy, nil
}

func overlay(policy *domain.RetryPolicy, entry config.RetryEntry) {
	if entry.MaxRetries != nil {
		policy.MaxRetries = *entry.MaxRetries
	}
	if entry.BaseDelay != 0 {
		policy.BaseDelay = entry.BaseDelay
	}
	if entry.MaxDelay != 0 {
		policy.MaxDelay = entry.MaxDelay
	}
}
