// Package batch splits large item sets into bounded batches and throttles them under memory pressure.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/ports"
)

const mib = 1 << 20

// Pause lengths by pressure band.
const (
	SoftPause     = 2 * time.Second
	ElevatedPause = 5 * time.Second
	CriticalPause = 10 * time.Second
)

// Options sizes batches and sets the memory thresholds in bytes.
type Options struct {
	Size            int
	GCEvery         int
	SoftLimit       uint64
	CriticalLimit   uint64
	MetricsCapacity int
}

// DefaultOptions returns 25-item batches with a 512 MiB soft and 1 GiB critical limit.
func DefaultOptions() Options {
	return Options{
		Size:            25,
		GCEvery:         5,
		SoftLimit:       512 * mib,
		CriticalLimit:   1024 * mib,
		MetricsCapacity: 100,
	}
}

// Deps wires the manager. A nil Collect degrades to pause-only behaviour.
type Deps struct {
	Sampler Sampler
	Collect func()
	Clock   clock.Clock
	Metrics ports.MetricsRecorder
	Logger  *slog.Logger
	Options Options
	// OnBatch observes every batch metric as it is recorded.
	OnBatch func(domain.BatchMetrics)
}

// Manager owns the memory policy and the per-batch metrics ring.
type Manager struct {
	mu      sync.Mutex
	sampler Sampler
	collect func()
	clock   clock.Clock
	metrics ports.MetricsRecorder
	logger  *slog.Logger
	opts    Options
	ring    *metricsRing
	batches int
	onBatch func(domain.BatchMetrics)
}

// NewManager builds a Manager; zero option fields use DefaultOptions.
func NewManager(deps Deps) *Manager {
	def := DefaultOptions()
	opts := deps.Options
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.GCEvery <= 0 {
		opts.GCEvery = def.GCEvery
	}
	if opts.SoftLimit == 0 {
		opts.SoftLimit = def.SoftLimit
	}
	if opts.CriticalLimit == 0 {
		opts.CriticalLimit = def.CriticalLimit
	}
	if opts.CriticalLimit < opts.SoftLimit {
		opts.CriticalLimit = opts.SoftLimit
	}

	m := &Manager{
		sampler: deps.Sampler,
		collect: deps.Collect,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		opts:    opts,
		ring:    newMetricsRing(opts.MetricsCapacity),
		onBatch: deps.OnBatch,
	}
	if m.sampler == nil {
		m.sampler = NewProcessSampler()
	}
	if m.clock == nil {
		m.clock = clock.Real{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Size is the configured batch size.
func (m *Manager) Size() int { return m.opts.Size }

// PauseFor maps a resident size to the pause required before the next batch.
func (m *Manager) PauseFor(rss uint64) time.Duration {
	elevated := m.opts.SoftLimit + (m.opts.CriticalLimit-m.opts.SoftLimit)/2
	switch {
	case rss > m.opts.CriticalLimit:
		return CriticalPause
	case rss > elevated:
		return ElevatedPause
	case rss > m.opts.SoftLimit:
		return SoftPause
	default:
		return 0
	}
}

// BeforeBatch samples memory and, above the soft limit, collects and pauses.
// The only error is ctx cancellation during the pause.
func (m *Manager) BeforeBatch(ctx context.Context, source string, index int) (domain.MemoryStats, error) {
	stats := m.sampler.Sample()
	pause := m.PauseFor(stats.RSS)
	if pause == 0 {
		return stats, nil
	}

	m.logger.Warn("memory pressure before batch",
		"source", source,
		"batch", index,
		"rss_mb", stats.RSS/mib,
		"soft_limit_mb", m.opts.SoftLimit/mib,
		"critical_limit_mb", m.opts.CriticalLimit/mib,
		"pause", pause,
	)
	m.runCollect("pressure")
	if err := m.clock.Sleep(ctx, pause); err != nil {
		return stats, fmt.Errorf("memory pause: %w", err)
	}
	return m.sampler.Sample(), nil
}

// AfterBatch counts the batch and proactively collects every GCEvery batches.
func (m *Manager) AfterBatch() {
	m.mu.Lock()
	m.batches++
	due := m.batches%m.opts.GCEvery == 0
	m.mu.Unlock()
	if due {
		m.runCollect("periodic")
	}
}

// Record stores one batch metric; a full ring is flushed to the metrics recorder.
func (m *Manager) Record(ctx context.Context, metric domain.BatchMetrics) {
	if m.onBatch != nil {
		m.onBatch(metric)
	}
	m.mu.Lock()
	full := m.ring.push(metric)
	var drained []domain.BatchMetrics
	if full {
		drained = m.ring.drain()
	}
	m.mu.Unlock()

	if full && m.metrics != nil {
		m.metrics.RecordMetrics(ctx, drained)
	}
}

// Flush hands every buffered metric to the recorder.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	drained := m.ring.drain()
	m.mu.Unlock()
	if len(drained) > 0 && m.metrics != nil {
		m.metrics.RecordMetrics(ctx, drained)
	}
}

// Buffered returns a copy of the metrics not yet flushed.
func (m *Manager) Buffered() []domain.BatchMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.snapshot()
}

func (m *Manager) runCollect(reason string) {
	if m.collect == nil {
		m.logger.Warn("no garbage collector hook available, pausing only", "reason", reason)
		return
	}
	m.collect()
	m.logger.Debug("forced garbage collection", "reason", reason)
}

// Result is what a batch handler reports.
type Result struct {
	Processed int
	Failed    int
}

// Handler processes one batch.
type Handler[T any] func(ctx context.Context, batch []T) (Result, error)

// Process walks items in fixed-size batches in order. A handler error marks that batch's
// items as failed without stopping the remaining batches. Only ctx cancellation aborts.
func Process[T any](ctx context.Context, m *Manager, source string, items []T, handle Handler[T]) (Result, error) {
	var total Result
	size := m.Size()

	for index, start := 0, 0; start < len(items); index, start = index+1, start+size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		before, err := m.BeforeBatch(ctx, source, index)
		if err != nil {
			return total, err
		}

		began := m.clock.Now()
		res, err := handle(ctx, batch)
		if err != nil {
			m.logger.Error("batch handler failed", "source", source, "batch", index, "error", err)
			res = Result{Failed: len(batch)}
		}
		after := m.sampler.Sample()

		m.Record(ctx, domain.BatchMetrics{
			ID:          uuid.NewString(),
			Source:      source,
			BatchIndex:  index,
			Processed:   res.Processed,
			Failed:      res.Failed,
			ElapsedMs:   m.clock.Now().Sub(began).Milliseconds(),
			MemoryStart: before.RSS,
			MemoryEnd:   after.RSS,
			MemoryDelta: int64(after.RSS) - int64(before.RSS),
			RecordedAt:  m.clock.Now(),
		})
		m.AfterBatch()

		total.Processed += res.Processed
		total.Failed += res.Failed
	}
	return total, nil
}
