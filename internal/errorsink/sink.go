// Package errorsink buffers error and batch metric records and flushes them to the record stores.
package errorsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 30 * time.Second
	// maxPendingBatches caps what is retained while the store keeps failing.
	maxPendingBatches = 20
)

// Deps wires the sink.
type Deps struct {
	Store         ports.RecordStore
	Clock         clock.Clock
	Logger        *slog.Logger
	BatchSize     int
	FlushInterval time.Duration
	// OnRecord observes every error record as it is accepted.
	OnRecord func(domain.ErrorRecord)
}

// Sink is safe for concurrent use. Records are written when BatchSize accumulate,
// on every FlushInterval tick while Run is active, and on Close.
type Sink struct {
	mu        sync.Mutex
	flushMu   sync.Mutex
	store     ports.RecordStore
	clock     clock.Clock
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	onRecord  func(domain.ErrorRecord)
	errs      []domain.ErrorRecord
	metrics   []domain.BatchMetrics
}

var (
	_ ports.ErrorRecorder   = (*Sink)(nil)
	_ ports.MetricsRecorder = (*Sink)(nil)
)

// New builds a Sink. A nil store turns flushes into log-only drops.
func New(deps Deps) *Sink {
	s := &Sink{
		store:     deps.Store,
		clock:     deps.Clock,
		logger:    deps.Logger,
		batchSize: deps.BatchSize,
		interval:  deps.FlushInterval,
		onRecord:  deps.OnRecord,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.interval <= 0 {
		s.interval = defaultFlushInterval
	}
	return s
}

// Record appends an error record and flushes once the batch size is reached.
func (s *Sink) Record(ctx context.Context, identifier string, kind domain.ErrorKind, message string, metadata map[string]any) {
	rec := domain.ErrorRecord{
		ID:         uuid.NewString(),
		Identifier: identifier,
		ErrorType:  kind,
		Message:    message,
		Metadata:   metadata,
		Timestamp:  s.clock.Now().UTC(),
	}
	if s.onRecord != nil {
		s.onRecord(rec)
	}

	s.mu.Lock()
	s.errs = append(s.errs, rec)
	full := len(s.errs) >= s.batchSize
	s.mu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			s.logger.Error("flush error records", "error", err)
		}
	}
}

// RecordMetrics appends batch metrics and flushes once the batch size is reached.
func (s *Sink) RecordMetrics(ctx context.Context, metrics []domain.BatchMetrics) {
	if len(metrics) == 0 {
		return
	}
	s.mu.Lock()
	s.metrics = append(s.metrics, metrics...)
	full := len(s.metrics) >= s.batchSize
	s.mu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			s.logger.Error("flush batch metrics", "error", err)
		}
	}
}

// Pending reports how many records are buffered.
func (s *Sink) Pending() (errorRecords, metricRecords int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs), len(s.metrics)
}

// Flush writes everything buffered. Records from a failed write are kept for the next flush,
// unless the store reports ErrRetained and keeps them itself.
func (s *Sink) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	errs := s.errs
	metrics := s.metrics
	s.errs = nil
	s.metrics = nil
	s.mu.Unlock()

	if len(errs) == 0 && len(metrics) == 0 {
		return nil
	}
	if s.store == nil {
		s.logger.Debug("dropping records, no record store configured", "errors", len(errs), "metrics", len(metrics))
		return nil
	}

	var failures []error
	if len(errs) > 0 {
		if err := s.store.WriteErrors(ctx, errs); err != nil {
			failures = append(failures, fmt.Errorf("write %d error records: %w", len(errs), err))
			if !errors.Is(err, ErrRetained) {
				s.requeueErrors(errs)
			}
		}
	}
	if len(metrics) > 0 {
		if err := s.store.WriteMetrics(ctx, metrics); err != nil {
			failures = append(failures, fmt.Errorf("write %d metrics: %w", len(metrics), err))
			if !errors.Is(err, ErrRetained) {
				s.requeueMetrics(metrics)
			}
		}
	}
	return errors.Join(failures...)
}

// Run flushes on every interval until ctx is done, then flushes once more.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Close(context.WithoutCancel(ctx))
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("periodic flush failed", "error", err)
			}
		}
	}
}

// Close performs the shutdown flush.
func (s *Sink) Close(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

func (s *Sink) requeueErrors(errs []domain.ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(errs, s.errs...)
	if limit := s.batchSize * maxPendingBatches; len(s.errs) > limit {
		s.errs = s.errs[len(s.errs)-limit:]
	}
}

func (s *Sink) requeueMetrics(metrics []domain.BatchMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(metrics, s.metrics...)
	if limit := s.batchSize * maxPendingBatches; len(s.metrics) > limit {
		s.metrics = s.metrics[len(s.metrics)-limit:]
	}
}
