package fetcher

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"FeedIngestor/internal/domain"
)

// parseFeed decodes an RSS or Atom payload into raw items in document order.
func parseFeed(body []byte) (string, []domain.RawItem, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil, ErrEmptyResponse
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		items = append(items, toRawItem(item))
	}
	return strings.TrimSpace(parsed.Title), items, nil
}

func toRawItem(item *gofeed.Item) domain.RawItem {
	raw := domain.RawItem{
		Title:      item.Title,
		Link:       item.Link,
		GUID:       item.GUID,
		Summary:    item.Description,
		Content:    item.Content,
		Categories: item.Categories,
	}

	if raw.Link == "" && len(item.Links) > 0 {
		raw.Link = item.Links[0]
	}

	switch {
	case item.PublishedParsed != nil:
		raw.Published = utcPtr(*item.PublishedParsed)
	case item.UpdatedParsed != nil:
		raw.Published = utcPtr(*item.UpdatedParsed)
	}
	raw.PublishedRaw = item.Published
	if raw.PublishedRaw == "" {
		raw.PublishedRaw = item.Updated
	}

	switch {
	case item.Author != nil && item.Author.Name != "":
		raw.Author = item.Author.Name
	case len(item.Authors) > 0 && item.Authors[0] != nil:
		raw.Author = item.Authors[0].Name
	}
	return raw
}

func utcPtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
