// Package dedup detects exact and near duplicate articles against the current run and the sink.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
	"FeedIngestor/internal/textutil"
)

const (
	tokenMinLength = 4
	tokenLimit     = 5
)

// Options tunes the checks. Zero values use the defaults.
type Options struct {
	Threshold       float64
	Weights         Weights
	CandidateWindow time.Duration
	MaxCandidates   int
	RecentCapacity  int
}

// Deps wires the deduplicator. Store and Seen are optional.
type Deps struct {
	Store   ports.ArticleStore
	Seen    ports.SeenCache
	Clock   clock.Clock
	Logger  *slog.Logger
	Options Options
}

// Deduplicator runs three independent checks: exact hash, exact link and fuzzy similarity.
type Deduplicator struct {
	mu     sync.Mutex
	recent *recentSet
	store  ports.ArticleStore
	seen   ports.SeenCache
	clock  clock.Clock
	logger *slog.Logger
	opts   Options
}

// New builds a Deduplicator.
func New(deps Deps) *Deduplicator {
	opts := deps.Options
	if opts.Threshold <= 0 {
		opts.Threshold = 0.85
	}
	if opts.Weights.Title <= 0 && opts.Weights.Description <= 0 {
		opts.Weights = Weights{Title: 0.7, Description: 0.3}
	}
	if opts.CandidateWindow <= 0 {
		opts.CandidateWindow = 72 * time.Hour
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 50
	}
	d := &Deduplicator{
		recent: newRecentSet(opts.RecentCapacity),
		store:  deps.Store,
		seen:   deps.Seen,
		clock:  deps.Clock,
		logger: deps.Logger,
		opts:   opts,
	}
	if d.clock == nil {
		d.clock = clock.Real{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Reset forgets the in-run set.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.recent = newRecentSet(d.recent.capacity)
	d.mu.Unlock()
}

// CheckDuplicates is a snapshot: nothing is locked between the check and the insert.
// A failing lookup is reported in the joined error without suppressing the other checks.
func (d *Deduplicator) CheckDuplicates(ctx context.Context, a domain.Article, hash string) (domain.DuplicateCheckResult, error) {
	var (
		res  domain.DuplicateCheckResult
		errs []error
	)

	if found, err := d.exactHash(ctx, hash); err != nil {
		errs = append(errs, err)
	} else if found {
		res.ExactDuplicates = append(res.ExactDuplicates, hash)
	}

	if matched, err := d.exactLink(ctx, a.Link); err != nil {
		errs = append(errs, err)
	} else if matched != "" {
		res.URLDuplicates = append(res.URLDuplicates, matched)
	}

	similar, err := d.similar(ctx, a, hash)
	if err != nil {
		errs = append(errs, err)
	}
	res.SimilarArticles = similar

	res.IsDuplicate = len(res.ExactDuplicates) > 0 || len(res.URLDuplicates) > 0
	res.HasSimilar = len(res.SimilarArticles) > 0
	return res, errors.Join(errs...)
}

// Remember adds an accepted article to the in-run set.
func (d *Deduplicator) Remember(a domain.Article) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent.add(recentEntry{
		hash:        a.ContentHash,
		link:        normalizeLink(a.Link),
		title:       a.Title,
		foldedTitle: textutil.Fold(a.Title),
		foldedDesc:  textutil.Fold(a.Description),
		publishedAt: a.PublishedAt,
	})
}

// MarkSeen records stored hashes in the cross-run seen cache, if one is configured.
func (d *Deduplicator) MarkSeen(ctx context.Context, hashes []string) error {
	if d.seen == nil {
		return nil
	}
	var errs []error
	for _, h := range hashes {
		if err := d.seen.MarkSeen(ctx, h); err != nil {
			errs = append(errs, fmt.Errorf("mark seen %s: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

// RecentCount reports the size of the in-run set.
func (d *Deduplicator) RecentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recent.size()
}

func (d *Deduplicator) exactHash(ctx context.Context, hash string) (bool, error) {
	d.mu.Lock()
	inRun := d.recent.hasHash(hash)
	d.mu.Unlock()
	if inRun {
		return true, nil
	}

	var errs []error
	if d.seen != nil {
		seen, err := d.seen.Seen(ctx, hash)
		if err != nil {
			errs = append(errs, fmt.Errorf("seen cache: %w", err))
		} else if seen {
			return true, nil
		}
	}
	if d.store != nil {
		stored, err := d.store.FindByHash(ctx, hash)
		if err != nil {
			errs = append(errs, fmt.Errorf("find by hash: %w", err))
		} else if stored != nil {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

func (d *Deduplicator) exactLink(ctx context.Context, link string) (string, error) {
	key := normalizeLink(link)
	d.mu.Lock()
	hash, inRun := d.recent.hashForLink(key)
	d.mu.Unlock()
	if inRun {
		return hash, nil
	}
	if d.store == nil {
		return "", nil
	}
	stored, err := d.store.FindByLink(ctx, key)
	if err != nil {
		return "", fmt.Errorf("find by link: %w", err)
	}
	if stored == nil {
		return "", nil
	}
	return stored.ContentHash, nil
}

func (d *Deduplicator) similar(ctx context.Context, a domain.Article, hash string) ([]domain.SimilarArticle, error) {
	title := textutil.Fold(a.Title)
	desc := textutil.Fold(a.Description)
	seen := map[string]struct{}{hash: {}}
	var out []domain.SimilarArticle

	consider := func(candHash, link, candTitle, foldedTitle, foldedDesc string) {
		if _, dup := seen[candHash]; dup {
			return
		}
		seen[candHash] = struct{}{}
		score := Combined(title, desc, foldedTitle, foldedDesc, d.opts.Weights)
		if AtLeast(score, d.opts.Threshold) {
			out = append(out, domain.SimilarArticle{ContentHash: candHash, Link: link, Title: candTitle, Score: score})
		}
	}

	since := d.clock.Now().Add(-d.opts.CandidateWindow)
	d.mu.Lock()
	entries := d.recent.entries()
	d.mu.Unlock()
	for _, e := range entries {
		if !e.publishedAt.IsZero() && e.publishedAt.Before(since) {
			continue
		}
		consider(e.hash, e.link, e.title, e.foldedTitle, e.foldedDesc)
	}

	var err error
	if d.store != nil {
		tokens := textutil.Tokens(a.Title, tokenMinLength, tokenLimit)
		if len(tokens) > 0 {
			candidates, qErr := d.store.RecentCandidates(ctx, tokens, since, d.opts.MaxCandidates)
			if qErr != nil {
				err = fmt.Errorf("recent candidates: %w", qErr)
			}
			for _, c := range candidates {
				consider(c.ContentHash, c.Link, c.Title, textutil.Fold(c.Title), textutil.Fold(c.Description))
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, err
}

func normalizeLink(link string) string {
	return strings.ToLower(strings.TrimSpace(link))
}
