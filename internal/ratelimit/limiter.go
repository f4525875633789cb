// Package ratelimit provides the shared fetch admission control: a sliding request window,
// a consecutive-failure pause and exponential backoff for per-feed retries.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"FeedIngestor/internal/clock"
)

// State represents the admission state of the limiter
type State int

const (
	// StateOpen means requests are allowed
	StateOpen State = iota
	// StateSaturated means the window is at capacity and callers must wait
	StateSaturated
	// StatePaused means consecutive failures tripped the breaker
	StatePaused
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSaturated:
		return "saturated"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Config configures a Limiter
type Config struct {
	// MaxRequests is the number of dispatches allowed per Window
	MaxRequests int
	// Window is the sliding window length
	Window time.Duration
	// MaxConsecutiveFailures trips the pause
	MaxConsecutiveFailures int
	// PauseDuration is how long all requests are refused once tripped
	PauseDuration time.Duration
	// OnStateChange is an optional callback when the limiter pauses or resumes
	OnStateChange func(from, to State)
}

// DefaultConfig returns the default limiter configuration
func DefaultConfig() Config {
	return Config{
		MaxRequests:            30,
		Window:                 time.Minute,
		MaxConsecutiveFailures: 5,
		PauseDuration:          60 * time.Second,
	}
}

// Snapshot is a read-only copy of the limiter state.
type Snapshot struct {
	State               State
	WindowRequests      int
	ConsecutiveFailures int
	PausedUntil         time.Time
}

// Limiter is shared by every feed of a run. All methods are safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	config      Config
	clock       clock.Clock
	logger      *slog.Logger
	requests    []time.Time
	failures    int
	pausedUntil time.Time
}

// New creates a limiter; non-positive fields fall back to DefaultConfig.
func New(config Config, clk clock.Clock, logger *slog.Logger) *Limiter {
	def := DefaultConfig()
	if config.MaxRequests <= 0 {
		config.MaxRequests = def.MaxRequests
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.MaxConsecutiveFailures <= 0 {
		config.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if config.PauseDuration <= 0 {
		config.PauseDuration = def.PauseDuration
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{config: config, clock: clk, logger: logger}
}

// CanMakeRequest reports whether a dispatch is admitted right now.
func (l *Limiter) CanMakeRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked(l.clock.Now()) == StateOpen
}

// WaitDuration is how long a refused caller should wait before asking again.
func (l *Limiter) WaitDuration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	switch l.stateLocked(now) {
	case StatePaused:
		return l.pausedUntil.Sub(now)
	case StateSaturated:
		return l.requests[0].Add(l.config.Window).Sub(now)
	default:
		return 0
	}
}

// State returns the current admission state.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked(l.clock.Now())
}

// Snapshot returns a copy of the counters.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	state := l.stateLocked(now)
	return Snapshot{
		State:               state,
		WindowRequests:      len(l.requests),
		ConsecutiveFailures: l.failures,
		PausedUntil:         l.pausedUntil,
	}
}

// RecordRequest must be called right before every dispatch.
func (l *Limiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.pruneLocked(now)
	l.requests = append(l.requests, now)
}

// RecordSuccess resets the consecutive failure counter.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	l.failures = 0
	l.mu.Unlock()
}

// RecordFailure counts a failed dispatch and pauses the limiter once the threshold is reached.
func (l *Limiter) RecordFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	before := l.stateLocked(now)
	l.failures++
	if l.failures < l.config.MaxConsecutiveFailures || before == StatePaused {
		return
	}

	l.pausedUntil = now.Add(l.config.PauseDuration)
	l.logger.Warn("rate limiter paused after consecutive failures",
		"failures", l.failures,
		"paused_until", l.pausedUntil,
	)
	l.notify(before, StatePaused)
}

// stateLocked refreshes the window and expires a finished pause.
func (l *Limiter) stateLocked(now time.Time) State {
	l.pruneLocked(now)

	if !l.pausedUntil.IsZero() {
		if now.Before(l.pausedUntil) {
			return StatePaused
		}
		l.pausedUntil = time.Time{}
		l.failures = 0
		l.logger.Info("rate limiter resumed")
		l.notify(StatePaused, StateOpen)
	}

	if len(l.requests) >= l.config.MaxRequests {
		return StateSaturated
	}
	return StateOpen
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.config.Window)
	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.requests = append(l.requests[:0], l.requests[i:]...)
	}
}

func (l *Limiter) notify(from, to State) {
	if l.config.OnStateChange != nil && from != to {
		l.config.OnStateChange(from, to)
	}
}
