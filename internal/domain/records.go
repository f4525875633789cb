package domain

import (
	"fmt"
	"time"
)

// ErrorKind classifies failures reported to the error sink.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "TIMEOUT"
	KindDNS               ErrorKind = "DNS_ERROR"
	KindConnRefused       ErrorKind = "CONNECTION_REFUSED"
	KindConnReset         ErrorKind = "CONNECTION_RESET"
	KindConnTimeout       ErrorKind = "CONNECTION_TIMEOUT"
	KindHTTP              ErrorKind = "HTTP_ERROR"
	KindEmptyResponse     ErrorKind = "EMPTY_RESPONSE"
	KindInvalidFeedFormat ErrorKind = "INVALID_FEED_FORMAT"

	KindConnection      ErrorKind = "CONNECTION_ERROR"
	KindFeedFailed      ErrorKind = "FEED_FAILED"
	KindValidation      ErrorKind = "VALIDATION_FAILED"
	KindProcessingError ErrorKind = "PROCESSING_ERROR"
	KindStorage         ErrorKind = "STORAGE_ERROR"
)

// ErrorRecord is one structured, append-only error entry.
type ErrorRecord struct {
	ID         string         `json:"id"`
	Identifier string         `json:"identifier"`
	ErrorType  ErrorKind      `json:"error_type"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// MemoryStats is a point-in-time process memory snapshot.
type MemoryStats struct {
	RSS       uint64    `json:"rss"`
	HeapAlloc uint64    `json:"heap_alloc"`
	NumGC     uint32    `json:"num_gc"`
	SampledAt time.Time `json:"sampled_at"`
}

// BatchMetrics is emitted once per processed batch.
type BatchMetrics struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	BatchIndex  int       `json:"batch_index"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	MemoryStart uint64    `json:"memory_before"`
	MemoryEnd   uint64    `json:"memory_after"`
	MemoryDelta int64     `json:"memory_delta"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// FeedReport is the per-feed line of a run summary.
type FeedReport struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Skipped   bool   `json:"skipped,omitempty"`
	ActiveURL string `json:"active_url,omitempty"`
	Fetched   int    `json:"fetched"`
	Dropped   int    `json:"dropped"`
	Valid     int    `json:"valid"`
	Invalid   int    `json:"invalid"`
	Duplicate int    `json:"duplicate"`
	Similar   int    `json:"similar"`
	Errored   int    `json:"errored"`
	Stored    int    `json:"stored"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// RunTotals aggregates a run.
type RunTotals struct {
	FeedsSucceeded int `json:"feeds_succeeded"`
	FeedsFailed    int `json:"feeds_failed"`
	FeedsSkipped   int `json:"feeds_skipped"`
	Fetched        int `json:"articles_fetched"`
	Valid          int `json:"articles_valid"`
	Invalid        int `json:"articles_invalid"`
	Duplicate      int `json:"articles_duplicate"`
	Errored        int `json:"articles_errored"`
	Stored         int `json:"articles_stored"`
}

// RunSummary is the only thing surfaced to callers of a run.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Feeds      []FeedReport `json:"feeds"`
	Totals     RunTotals    `json:"totals"`
}

// Add folds a feed report into the totals.
func (s *RunSummary) Add(r FeedReport) {
	s.Feeds = append(s.Feeds, r)
	switch {
	case r.Skipped:
		s.Totals.FeedsSkipped++
	case r.Success:
		s.Totals.FeedsSucceeded++
	default:
		s.Totals.FeedsFailed++
	}
	s.Totals.Fetched += r.Fetched
	s.Totals.Valid += r.Valid
	s.Totals.Invalid += r.Invalid
	s.Totals.Duplicate += r.Duplicate
	s.Totals.Errored += r.Errored
	s.Totals.Stored += r.Stored
}

// ConfigError is fatal: the pipeline cannot start without a valid feed registry.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Field != "" {
		msg += " " + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }
