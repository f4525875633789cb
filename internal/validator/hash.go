package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/textutil"
)

// ContentHash fingerprints an article over its folded title and description, its lowercased
// link and its UTC publish day. Case, markup, whitespace and punctuation do not change it.
func ContentHash(a domain.Article) string {
	parts := []string{
		textutil.Fold(a.Title),
		textutil.Fold(a.Description),
		strings.ToLower(strings.TrimSpace(a.Link)),
		a.PublishedAt.UTC().Format("2006-01-02"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
