package batch

import "FeedIngestor/internal/domain"

// metricsRing keeps at most capacity records until drained.
type metricsRing struct {
	capacity int
	items    []domain.BatchMetrics
}

func newMetricsRing(capacity int) *metricsRing {
	if capacity <= 0 {
		capacity = 100
	}
	return &metricsRing{capacity: capacity, items: make([]domain.BatchMetrics, 0, capacity)}
}

// push appends m and reports whether the ring is now full.
func (r *metricsRing) push(m domain.BatchMetrics) bool {
	if len(r.items) == r.capacity {
		r.items = append(r.items[:0], r.items[1:]...)
	}
	r.items = append(r.items, m)
	return len(r.items) == r.capacity
}

func (r *metricsRing) drain() []domain.BatchMetrics {
	out := make([]domain.BatchMetrics, len(r.items))
	copy(out, r.items)
	r.items = r.items[:0]
	return out
}

func (r *metricsRing) snapshot() []domain.BatchMetrics {
	out := make([]domain.BatchMetrics, len(r.items))
	copy(out, r.items)
	return out
}
