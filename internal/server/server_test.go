package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/metrics"
)

type fakeTrigger struct {
	mu      sync.Mutex
	running bool
	starts  int
	last    *domain.RunOutcome
}

func (f *fakeTrigger) Start(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return false
	}
	f.running = true
	f.starts++
	return true
}

func (f *fakeTrigger) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTrigger) Last() *domain.RunOutcome { return f.last }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRunTrigger(t *testing.T) {
	trig := &fakeTrigger{}
	h := New(context.Background(), trig, nil).Handler()

	rec := do(t, h, http.MethodPost, "/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodPost, "/run")
	assert.Equal(t, http.StatusNoContent, rec.Code, "a second trigger while running is a no-op")
	assert.Equal(t, 1, trig.starts)

	rec = do(t, h, http.MethodGet, "/run")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	h := New(context.Background(), &fakeTrigger{running: true}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["running"])
}

func TestLastRun(t *testing.T) {
	trig := &fakeTrigger{}
	h := New(context.Background(), trig, nil).Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs/last").Code)

	trig.last = domain.NewRunOutcome()
	trig.last.ArticlesPersisted = 4
	rec := do(t, h, http.MethodGet, "/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 4, body["articles_persisted"])
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ObserveStage(string(domain.StagePersistence), http.StatusCreated)
	h := New(context.Background(), &fakeTrigger{}, nil).Handler()

	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `jist_stage_responses_total{code="201",stage="persistence"}`))
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := New(ctx, &fakeTrigger{}, nil)

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
