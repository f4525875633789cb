// Package metrics exposes the ingestion counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FeedIngestor/internal/domain"
)

const namespace = "feedingestor"

// Outcome labels for ArticlesTotal.
const (
	OutcomeFetched   = "fetched"
	OutcomeDropped   = "dropped"
	OutcomeValid     = "valid"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeSimilar   = "similar"
	OutcomeErrored   = "errored"
	OutcomeStored    = "stored"
)

// attemptOK labels a fetch attempt that produced a parsed feed.
const attemptOK = "OK"

// Metrics holds the collectors and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	FetchAttempts  *prometheus.CounterVec
	ArticlesTotal  *prometheus.CounterVec
	FeedsTotal     *prometheus.CounterVec
	ErrorRecords   *prometheus.CounterVec
	RunsTotal      *prometheus.CounterVec
	BatchDuration  *prometheus.HistogramVec
	MemoryRSS      prometheus.Gauge
	LastRunSuccess prometheus.Gauge
}

// New registers every collector on a fresh registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Feed fetch attempts by outcome kind",
		}, []string{"feed", "kind"}),
		ArticlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles seen by the pipeline by outcome",
		}, []string{"outcome"}),
		FeedsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeds_total",
			Help:      "Feeds processed per run by status",
		}, []string{"status"}),
		ErrorRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_records_total",
			Help:      "Error records accepted by the error sink",
		}, []string{"type"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed ingestion runs",
		}, []string{"result"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent validating one batch",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"source"}),
		MemoryRSS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_rss_bytes",
			Help:      "Resident set size sampled after the last batch",
		}),
		LastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without failed feeds",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveAttempt counts one fetch attempt; an empty kind means success.
func (m *Metrics) ObserveAttempt(feed string, attempt domain.FetchAttempt) {
	kind := string(attempt.Kind)
	if kind == "" {
		kind = attemptOK
	}
	m.FetchAttempts.WithLabelValues(feed, kind).Inc()
}

// ObserveBatch records the duration and memory of one processed batch.
func (m *Metrics) ObserveBatch(metric domain.BatchMetrics) {
	m.BatchDuration.WithLabelValues(metric.Source).Observe(float64(metric.ElapsedMs) / 1000)
	m.MemoryRSS.Set(float64(metric.MemoryEnd))
}

// ObserveError counts an accepted error record.
func (m *Metrics) ObserveError(rec domain.ErrorRecord) {
	m.ErrorRecords.WithLabelValues(string(rec.ErrorType)).Inc()
}

// ObserveRun folds a finished run summary into the counters.
func (m *Metrics) ObserveRun(summary domain.RunSummary) {
	for _, f := range summary.Feeds {
		switch {
		case f.Skipped:
			m.FeedsTotal.WithLabelValues("skipped").Inc()
			continue
		case f.Success:
			m.FeedsTotal.WithLabelValues("succeeded").Inc()
		default:
			m.FeedsTotal.WithLabelValues("failed").Inc()
		}
		m.addArticles(OutcomeFetched, f.Fetched)
		m.addArticles(OutcomeDropped, f.Dropped)
		m.addArticles(OutcomeValid, f.Valid)
		m.addArticles(OutcomeInvalid, f.Invalid)
		m.addArticles(OutcomeDuplicate, f.Duplicate)
		m.addArticles(OutcomeSimilar, f.Similar)
		m.addArticles(OutcomeErrored, f.Errored)
		m.addArticles(OutcomeStored, f.Stored)
	}

	if summary.Totals.FeedsFailed > 0 {
		m.RunsTotal.WithLabelValues("partial").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.LastRunSuccess.Set(float64(summary.FinishedAt.Unix()))
}

func (m *Metrics) addArticles(outcome string, n int) {
	if n > 0 {
		m.ArticlesTotal.WithLabelValues(outcome).Add(float64(n))
	}
}
