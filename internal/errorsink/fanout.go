package errorsink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

// ErrRetained marks a failed write whose records the store already holds for its next write.
// The sink does not requeue such records.
var ErrRetained = errors.New("records retained for retry")

// Fanout writes to several stores. Each store keeps its own backlog of records it failed to
// accept, prepended to its next write, so a healthy store never sees a record twice.
type Fanout struct {
	mu      sync.Mutex
	limit   int
	targets []*fanoutTarget
}

type fanoutTarget struct {
	store   ports.RecordStore
	errs    []domain.ErrorRecord
	metrics []domain.BatchMetrics
}

var _ ports.RecordStore = (*Fanout)(nil)

// NewFanout writes to stores in order. backlog caps each store's retained records per kind;
// the oldest are dropped first.
func NewFanout(backlog int, stores ...ports.RecordStore) *Fanout {
	if backlog <= 0 {
		backlog = defaultBatchSize * maxPendingBatches
	}
	f := &Fanout{limit: backlog}
	for _, s := range stores {
		f.targets = append(f.targets, &fanoutTarget{store: s})
	}
	return f
}

// WriteErrors implements ports.RecordStore.
func (f *Fanout) WriteErrors(ctx context.Context, records []domain.ErrorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var failures []error
	for i, t := range f.targets {
		if err := writeWithBacklog(ctx, &t.errs, records, f.limit, t.store.WriteErrors); err != nil {
			failures = append(failures, fmt.Errorf("store %d: %w", i, err))
		}
	}
	return retained(failures)
}

// WriteMetrics implements ports.RecordStore.
func (f *Fanout) WriteMetrics(ctx context.Context, metrics []domain.BatchMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var failures []error
	for i, t := range f.targets {
		if err := writeWithBacklog(ctx, &t.metrics, metrics, f.limit, t.store.WriteMetrics); err != nil {
			failures = append(failures, fmt.Errorf("store %d: %w", i, err))
		}
	}
	return retained(failures)
}

func writeWithBacklog[T any](ctx context.Context, backlog *[]T, records []T, limit int, write func(context.Context, []T) error) error {
	batch := make([]T, 0, len(*backlog)+len(records))
	batch = append(append(batch, *backlog...), records...)
	if len(batch) == 0 {
		return nil
	}
	if err := write(ctx, batch); err != nil {
		if len(batch) > limit {
			batch = batch[len(batch)-limit:]
		}
		*backlog = batch
		return err
	}
	*backlog = nil
	return nil
}

func retained(failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetained, errors.Join(failures...))
}
