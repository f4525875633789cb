package domain

import "time"

// RawItem is the unmodified unit parsed out of a feed response.
type RawItem struct {
	Title        string
	Link         string
	GUID         string
	Summary      string
	Content      string
	Published    *time.Time
	PublishedRaw string
	Categories   []string
	Author       string
}

// Article is the canonical record handed to the sink.
type Article struct {
	Title       string           `json:"title"`
	Link        string           `json:"link"`
	Description string           `json:"description"`
	PublishedAt time.Time        `json:"published_at"`
	Author      string           `json:"author,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Source      string           `json:"source"`
	Category    string           `json:"category,omitempty"`
	ContentHash string           `json:"content_hash"`
	Similar     []SimilarArticle `json:"similar_articles,omitempty"`
	FetchedAt   time.Time        `json:"fetched_at"`
}

// URLValidation describes the outcome of the link checks.
type URLValidation struct {
	Valid      bool   `json:"valid"`
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ValidationResult is produced per article by the validator.
type ValidationResult struct {
	Valid         bool          `json:"valid"`
	Errors        []string      `json:"errors,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	ContentHash   string        `json:"content_hash"`
	URLValidation URLValidation `json:"url_validation"`
}

// SimilarArticle is a fuzzy match annotation.
type SimilarArticle struct {
	ContentHash string  `json:"content_hash"`
	Link        string  `json:"link"`
	Title       string  `json:"title"`
	Score       float64 `json:"score"`
}

// DuplicateCheckResult is a point-in-time snapshot of the three dedup checks.
type DuplicateCheckResult struct {
	ExactDuplicates []string         `json:"exact_duplicates,omitempty"`
	URLDuplicates   []string         `json:"url_duplicates,omitempty"`
	SimilarArticles []SimilarArticle `json:"similar_articles,omitempty"`
	IsDuplicate     bool             `json:"is_duplicate"`
	HasSimilar      bool             `json:"has_similar"`
}

// StoredArticle is the subset of a persisted article the dedup checks read back.
type StoredArticle struct {
	ContentHash string
	Title       string
	Description string
	Link        string
	PublishedAt time.Time
}

// UpsertResult reports how a batch upsert went; Failed holds per-article errors by hash.
type UpsertResult struct {
	Inserted       int
	Skipped        int
	InsertedHashes []string
	Failed         map[string]error
}
