package domain

import "time"

// RetryPolicy bounds how often and how slowly a single feed is retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// FeedConfig is one configured feed; immutable for the lifetime of a run.
type FeedConfig struct {
	Name         string
	URL          string
	FallbackURLs []string
	Category     string
	Enabled      bool
	Retry        RetryPolicy
	Timeout      time.Duration
}

// CandidateURLs returns the primary URL followed by the fallbacks.
func (f FeedConfig) CandidateURLs() []string {
	out := make([]string, 0, 1+len(f.FallbackURLs))
	out = append(out, f.URL)
	return append(out, f.FallbackURLs...)
}

// ResolvedFeed is a feed plus the URL currently believed reachable.
type ResolvedFeed struct {
	Feed       FeedConfig
	ActiveURL  string
	Candidates []string
	Failed     bool
}

// FetchAttempt describes one network try.
type FetchAttempt struct {
	Number     int
	URL        string
	Elapsed    time.Duration
	Kind       ErrorKind
	StatusCode int
}

// FeedMetadata is attached to a successful fetch.
type FeedMetadata struct {
	Title     string
	ItemCount int
	Elapsed   time.Duration
	ActiveURL string
	Attempts  int
}

// FetchResult is what the fetcher reports back to the orchestration loop.
type FetchResult struct {
	Success  bool
	Items    []RawItem
	Metadata FeedMetadata
	Attempts []FetchAttempt
	Err      error
}
