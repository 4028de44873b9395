package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/BartekS5/movielens-etl/internal/etl"
	"github.com/BartekS5/movielens-etl/internal/metrics"
	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.SetLogger(zap.NewNop().Sugar())
	os.Exit(m.Run())
}

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	failMsg string
	panics  bool
	started chan struct{}
	release chan struct{}
	counts  map[string]int64
	sumErr  error
}

func (f *fakeRunner) RunFullETL(context.Context) *models.RunStats {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.panics {
		panic("store handle is nil")
	}
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	stats := models.NewRunStats()
	stats.ItemsLoaded = 1682
	stats.ActorsLoaded = 943
	stats.InteractionsLoaded = 100000
	stats.Finalize(f.failMsg)
	return stats
}

func (f *fakeRunner) Summary(context.Context) (map[string]int64, error) {
	return f.counts, f.sumErr
}

func (f *fakeRunner) Stage() etl.Stage {
	return etl.StageIdle
}

type fakeObjects struct{ err error }

func (f fakeObjects) GetObject(context.Context, string) ([]byte, error) { return nil, f.err }
func (f fakeObjects) CheckConnection(context.Context) error { return f.err }

// fakeStore only answers liveness checks.
type fakeStore struct {
	etl.RecordStore
	up bool
}

func (f fakeStore) CheckConnection(context.Context) bool { return f.up }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Success bool            `json:"success"`
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	h.ServeHTTP(w, req)

	var body envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestRunETLSuccess(t *testing.T) {
	runner := &fakeRunner{}
	r := New(runner, fakeObjects{}, fakeStore{up: true}, nil).Router()

	w, body := do(t, r, http.MethodPost, "/etl/run")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)

	var stats models.RunStats
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, models.StatusSuccess, stats.Status)
	assert.Equal(t, 100000, stats.InteractionsLoaded)
	assert.NotEmpty(t, stats.RunID)
}

func TestRunETLFailure(t *testing.T) {
	runner := &fakeRunner{failMsg: "relational store is not reachable"}
	r := New(runner, fakeObjects{}, fakeStore{up: true}, nil).Router()

	w, body := do(t, r, http.MethodPost, "/etl/run")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "relational store is not reachable")

	var stats models.RunStats
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, models.StatusFailed, stats.Status)
}

func TestRunETLAborted(t *testing.T) {
	runner := &fakeRunner{panics: true}
	r := New(runner, fakeObjects{}, fakeStore{up: true}, nil).Router()

	w, body := do(t, r, http.MethodPost, "/etl/run")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "store handle is nil")

	// The run lock is released after a panic.
	runner.panics = false
	w, _ = do(t, r, http.MethodPost, "/etl/run")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRunETLRejectsConcurrentRun(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}), release: make(chan struct{})}
	r := New(runner, fakeObjects{}, fakeStore{up: true}, nil).Router()

	done := make(chan int)
	go func() {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/etl/run", nil))
		done <- w.Code
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}

	w, _ := do(t, r, http.MethodPost, "/etl/run")
	assert.Equal(t, http.StatusConflict, w.Code)

	close(runner.release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, runner.runs)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		objects fakeObjects
		store   fakeStore
		want    int
	}{
		{"healthy", fakeObjects{}, fakeStore{up: true}, http.StatusOK},
		{"database down", fakeObjects{}, fakeStore{up: false}, http.StatusServiceUnavailable},
		{"object store down", fakeObjects{err: errors.New("dial tcp: connection refused")}, fakeStore{up: true}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&fakeRunner{}, tt.objects, tt.store, nil).Router()
			w, body := do(t, r, http.MethodGet, "/health")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.want, body.Code)
		})
	}
}

func TestSummary(t *testing.T) {
	runner := &fakeRunner{counts: map[string]int64{"items": 1682, "actors": 943, "interactions": 100000}}
	r := New(runner, fakeObjects{}, fakeStore{up: true}, nil).Router()

	w, body := do(t, r, http.MethodGet, "/etl/summary")
	assert.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Tables map[string]int64 `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, runner.counts, data.Tables)

	runner.sumErr = errors.New("collecting table row counts: connectivity")
	w, _ = do(t, r, http.MethodGet, "/etl/summary")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	stats := models.NewRunStats()
	stats.Finalize("")
	rec.ObserveRun(stats)

	r := New(&fakeRunner{}, fakeObjects{}, fakeStore{up: true}, reg).Router()
	w, _ := do(t, r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `movielens_etl_runs_total{status="success"} 1`)
}

func TestMetricsEndpointDisabled(t *testing.T) {
	r := New(&fakeRunner{}, fakeObjects{}, fakeStore{up: true}, nil).Router()
	w, _ := do(t, r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
