// Package resolver caches hostname lookups and picks the first resolvable URL of a feed.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

const (
	defaultTTL           = 5 * time.Minute
	defaultFailureTTL    = 60 * time.Second
	defaultLookupTimeout = 5 * time.Second
)

// LookupFunc resolves a host to its addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Result is the outcome of one Resolve call.
type Result struct {
	Success bool
	Address string
	Err     error
	Cached  bool
}

type entry struct {
	result  Result
	expires time.Time
}

// Deps configures a Cache. Zero values fall back to net.DefaultResolver and the default TTLs.
type Deps struct {
	Lookup        LookupFunc
	Clock         clock.Clock
	Errors        ports.ErrorRecorder
	Logger        *slog.Logger
	TTL           time.Duration
	FailureTTL    time.Duration
	LookupTimeout time.Duration
}

// Cache is a hostname to address cache with separate success and failure TTLs.
type Cache struct {
	mu            sync.Mutex
	entries       map[string]entry
	lookup        LookupFunc
	clock         clock.Clock
	errors        ports.ErrorRecorder
	logger        *slog.Logger
	ttl           time.Duration
	failureTTL    time.Duration
	lookupTimeout time.Duration
}

// New builds a Cache.
func New(deps Deps) *Cache {
	c := &Cache{
		entries:       map[string]entry{},
		lookup:        deps.Lookup,
		clock:         deps.Clock,
		errors:        deps.Errors,
		logger:        deps.Logger,
		ttl:           deps.TTL,
		failureTTL:    deps.FailureTTL,
		lookupTimeout: deps.LookupTimeout,
	}
	if c.lookup == nil {
		c.lookup = net.DefaultResolver.LookupHost
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.failureTTL <= 0 {
		c.failureTTL = defaultFailureTTL
	}
	if c.lookupTimeout <= 0 {
		c.lookupTimeout = defaultLookupTimeout
	}
	return c
}

// Resolve returns the cached result for host while it is fresh, otherwise performs a lookup.
// IP literals resolve to themselves.
func (c *Cache) Resolve(ctx context.Context, host string) Result {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	if host == "" {
		return Result{Err: fmt.Errorf("empty hostname")}
	}
	if ip := net.ParseIP(host); ip != nil {
		return Result{Success: true, Address: ip.String()}
	}

	now := c.clock.Now()
	c.mu.Lock()
	if e, ok := c.entries[host]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		res := e.result
		res.Cached = true
		return res
	}
	c.mu.Unlock()

	lookupCtx, cancel := context.WithTimeout(ctx, c.lookupTimeout)
	addrs, err := c.lookup(lookupCtx, host)
	cancel()

	var res Result
	ttl := c.ttl
	switch {
	case err != nil:
		res = Result{Err: fmt.Errorf("resolve %s: %w", host, err)}
		ttl = c.failureTTL
	case len(addrs) == 0:
		res = Result{Err: fmt.Errorf("resolve %s: no addresses", host)}
		ttl = c.failureTTL
	default:
		res = Result{Success: true, Address: addrs[0]}
	}

	// A lookup cut short by the caller says nothing about the host.
	if ctx.Err() != nil {
		return res
	}

	c.mu.Lock()
	c.entries[host] = entry{result: res, expires: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
	return res
}

// ResolveFeedWithFallback checks the primary host then each fallback in order.
// It never fails the caller: when nothing resolves the feed is marked Failed and
// a CONNECTION_ERROR record is emitted.
func (c *Cache) ResolveFeedWithFallback(ctx context.Context, feed domain.FeedConfig) domain.ResolvedFeed {
	resolved := domain.ResolvedFeed{Feed: feed}
	var failures []string

	for _, candidate := range feed.CandidateURLs() {
		u, err := url.Parse(candidate)
		if err != nil || u.Hostname() == "" {
			failures = append(failures, fmt.Sprintf("%s: invalid url", candidate))
			continue
		}
		res := c.Resolve(ctx, u.Hostname())
		if !res.Success {
			c.logger.Debug("candidate host did not resolve", "feed", feed.Name, "url", candidate, "error", res.Err)
			failures = append(failures, res.Err.Error())
			continue
		}
		resolved.Candidates = append(resolved.Candidates, candidate)
	}

	if len(resolved.Candidates) == 0 {
		resolved.Failed = true
		msg := fmt.Sprintf("no resolvable url for feed %s", feed.Name)
		c.logger.Warn(msg, "failures", failures)
		if c.errors != nil {
			c.errors.Record(ctx, feed.Name, domain.KindConnection, msg, map[string]any{
				"urls":     feed.CandidateURLs(),
				"failures": failures,
			})
		}
		return resolved
	}

	resolved.ActiveURL = resolved.Candidates[0]
	return resolved
}
