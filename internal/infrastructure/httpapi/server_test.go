package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FeedIngestor/internal/domain"
	"FeedIngestor/internal/infrastructure/httpapi"
	"FeedIngestor/internal/logging"
	"FeedIngestor/internal/usecase"
)

type stubRunner struct {
	summary domain.RunSummary
	err     error
	last    *domain.RunSummary
	calls   int
}

func (s *stubRunner) FetchAllFeeds(context.Context) (domain.RunSummary, error) {
	s.calls++
	return s.summary, s.err
}

func (s *stubRunner) LastSummary() (domain.RunSummary, bool) {
	if s.last == nil {
		return domain.RunSummary{}, false
	}
	return *s.last, true
}

func serve(t *testing.T, srv *httpapi.Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, method, path, http.NoBody)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestTriggerRunReturnsSummary(t *testing.T) {
	runner := &stubRunner{summary: domain.RunSummary{RunID: "r-1", Totals: domain.RunTotals{Stored: 4}}}
	srv := httpapi.New(":0", runner, nil, logging.Discard())

	w := serve(t, srv, http.MethodPost, "/api/ingest/run")

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "r-1", got.RunID)
	assert.Equal(t, 4, got.Totals.Stored)
	assert.Equal(t, 1, runner.calls)
}

func TestTriggerRunConflictsWhileRunning(t *testing.T) {
	srv := httpapi.New(":0", &stubRunner{err: usecase.ErrRunInProgress}, nil, logging.Discard())

	w := serve(t, srv, http.MethodPost, "/api/ingest/run")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already in progress")
}

func TestTriggerRunReportsConfigErrors(t *testing.T) {
	runner := &stubRunner{err: &domain.ConfigError{Field: "feeds[1].name", Reason: "duplicate feed name"}}
	srv := httpapi.New(":0", runner, nil, logging.Discard())

	w := serve(t, srv, http.MethodPost, "/api/ingest/run")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"config"`)
}

func TestLastRun(t *testing.T) {
	runner := &stubRunner{}
	srv := httpapi.New(":0", runner, nil, logging.Discard())

	assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/api/ingest/last").Code)

	runner.last = &domain.RunSummary{RunID: "r-2"}
	w := serve(t, srv, http.MethodGet, "/api/ingest/last")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"run_id":"r-2"`)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("feedingestor_runs_total 1\n"))
	})
	srv := httpapi.New(":0", &stubRunner{}, metrics, logging.Discard())

	health := serve(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body.String())

	w := serve(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "feedingestor_runs_total")
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httpapi.New("127.0.0.1:0", &stubRunner{}, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)
}
