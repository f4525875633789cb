package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/metrics"
)

func TestObserveAttempt(t *testing.T) {
	m := metrics.New()

	m.ObserveAttempt("world", domain.FetchAttempt{Number: 0, Kind: domain.KindHTTP, StatusCode: 404})
	m.ObserveAttempt("world", domain.FetchAttempt{Number: 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("world", "HTTP_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("world", "OK")))
}

func TestObserveRun(t *testing.T) {
	m := metrics.New()
	finished := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	summary := domain.RunSummary{FinishedAt: finished}
	summary.Add(domain.FeedReport{Name: "a", Success: true, Fetched: 4, Valid: 3, Duplicate: 1, Stored: 3})
	summary.Add(domain.FeedReport{Name: "b", Skipped: true})
	m.ObserveRun(summary)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ArticlesTotal.WithLabelValues(metrics.OutcomeFetched)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ArticlesTotal.WithLabelValues(metrics.OutcomeStored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.LastRunSuccess))

	failed := domain.RunSummary{FinishedAt: finished.Add(time.Hour)}
	failed.Add(domain.FeedReport{Name: "c"})
	m.ObserveRun(failed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("partial")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.LastRunSuccess), "partial runs keep the last success time")
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New()
	m.ObserveBatch(domain.BatchMetrics{Source: "world", ElapsedMs: 250, MemoryEnd: 64 << 20})
	m.ObserveError(domain.ErrorRecord{ErrorType: domain.KindDNS})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "feedingestor_batch_duration_seconds_count{source=\"world\"} 1"))
	assert.True(t, strings.Contains(body, "feedingestor_error_records_total{type=\"DNS_ERROR\"} 1"))
	assert.Equal(t, float64(64<<20), testutil.ToFloat64(m.MemoryRSS))
}
