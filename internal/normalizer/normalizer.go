// Package normalizer turns raw feed items into canonical articles.
package normalizer

import (
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/textutil"
)

const (
	defaultMaxTitle       = 500
	defaultMaxDescription = 2000
	defaultMaxTags        = 5
)

// Options clamps normalized fields; zero values use the defaults.
type Options struct {
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxTags              int
}

// Normalizer is stateless apart from its clock.
type Normalizer struct {
	opts  Options
	clock clock.Clock
}

// New builds a Normalizer.
func New(opts Options, clk clock.Clock) *Normalizer {
	if opts.MaxTitleLength <= 0 {
		opts.MaxTitleLength = defaultMaxTitle
	}
	if opts.MaxDescriptionLength <= 0 {
		opts.MaxDescriptionLength = defaultMaxDescription
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = defaultMaxTags
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Normalizer{opts: opts, clock: clk}
}

// Normalize returns nil when the item has no usable title or link after cleaning.
func (n *Normalizer) Normalize(item domain.RawItem, feed domain.FeedConfig) *domain.Article {
	title := textutil.Truncate(textutil.Clean(item.Title), n.opts.MaxTitleLength)
	link := pickLink(item)
	if title == "" || link == "" {
		return nil
	}

	description := textutil.Clean(item.Summary)
	if description == "" {
		description = textutil.Clean(item.Content)
	}
	description = textutil.Truncate(description, n.opts.MaxDescriptionLength)

	now := n.clock.Now().UTC()
	return &domain.Article{
		Title:       title,
		Link:        link,
		Description: description,
		PublishedAt: n.publishedAt(item, now),
		Author:      textutil.Clean(item.Author),
		Tags:        n.tags(item.Categories),
		Source:      feed.Name,
		Category:    feed.Category,
		FetchedAt:   now,
	}
}

func pickLink(item domain.RawItem) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	guid := strings.TrimSpace(item.GUID)
	u, err := url.Parse(guid)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return guid
}

func (n *Normalizer) publishedAt(item domain.RawItem, now time.Time) time.Time {
	if item.Published != nil && !item.Published.IsZero() {
		return item.Published.UTC()
	}
	if raw := strings.TrimSpace(item.PublishedRaw); raw != "" {
		if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return now
}

func (n *Normalizer) tags(categories []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range categories {
		tag := textutil.Clean(c)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
		if len(out) == n.opts.MaxTags {
			break
		}
	}
	return out
}
