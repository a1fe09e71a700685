package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/pipeline"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/repository"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/warehouse"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

func baseConfig() config.Config {
	return config.Config{
		Country:          "ph",
		MinDate:          time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Timezone:         time.UTC,
		Limit:            100,
		StorageBackend:   config.StorageFile,
		Bucket:           "ph-news",
		WarehouseBackend: config.WarehouseSQLite,
		Project:          "local",
		Dataset:          "ph_news",
		Table:            "news_data",
		LogLevel:         "info",
	}
}

type testServer struct {
	router  *gin.Engine
	handler *RunHandler
	runs    *repository.MemoryRunRepository
	gotCfg  chan config.Config
	release chan struct{}
}

func newTestServer(t *testing.T, runErr error) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		runs:    repository.NewMemoryRunRepository(),
		gotCfg:  make(chan config.Config, 1),
		release: make(chan struct{}),
	}
	run := func(ctx context.Context, cfg config.Config, runID string) (models.RunReport, error) {
		ts.gotCfg <- cfg
		<-ts.release
		report := models.RunReport{RunID: runID, Status: models.RunDone, Fetched: 5, New: 2, Loaded: 2}
		if runErr != nil {
			report.Status = models.RunError
			report.Error = runErr.Error()
			report.ErrorClass = "source_unavailable"
		}
		return report, runErr
	}

	ts.handler = NewRunHandler(context.Background(), baseConfig(), run, ts.runs, logger.Discard())
	ts.router = gin.New()
	ts.router.Use(RequestLogger(logger.Discard()))
	ts.handler.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateRunLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/run", `{"country":"sg","dataset":"sg_news"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /run = %d %s", w.Code, w.Body.String())
	}
	var created struct {
		RunID string `json:"run_id"`
	}
	decode(t, w, &created)

	cfg := <-ts.gotCfg
	if cfg.Country != "sg" || cfg.Dataset != "sg_news" || cfg.Table != "news_data" {
		t.Errorf("run got config %s", cfg)
	}

	if w := ts.do(http.MethodPost, "/run", ""); w.Code != http.StatusConflict {
		t.Errorf("second POST /run = %d, want 409", w.Code)
	}

	w = ts.do(http.MethodGet, "/run/"+created.RunID, "")
	var running models.RunReport
	decode(t, w, &running)
	if running.Status != models.RunRunning && running.Status != models.RunQueued {
		t.Errorf("status while running = %q", running.Status)
	}

	close(ts.release)
	ts.handler.Wait()

	w = ts.do(http.MethodGet, "/run/"+created.RunID, "")
	var done models.RunReport
	decode(t, w, &done)
	if done.Status != models.RunDone || done.Loaded != 2 {
		t.Errorf("finished run = %+v", done)
	}

	w = ts.do(http.MethodGet, "/runs", "")
	var all []models.RunReport
	decode(t, w, &all)
	if len(all) != 1 || all[0].RunID != created.RunID {
		t.Errorf("runs = %+v", all)
	}

	// Idle again: a new run is accepted.
	ts.release = make(chan struct{})
	close(ts.release)
	if w := ts.do(http.MethodPost, "/run", "{}"); w.Code != http.StatusAccepted {
		t.Errorf("POST /run after finish = %d", w.Code)
	}
	<-ts.gotCfg
	ts.handler.Wait()
}

func TestCreateRunFailure(t *testing.T) {
	ts := newTestServer(t, errors.New("news source unavailable"))
	close(ts.release)

	w := ts.do(http.MethodPost, "/run", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /run = %d", w.Code)
	}
	var created struct {
		RunID string `json:"run_id"`
	}
	decode(t, w, &created)
	<-ts.gotCfg
	ts.handler.Wait()

	got, err := ts.runs.Get(context.Background(), created.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RunError || got.ErrorClass != "source_unavailable" {
		t.Errorf("failed run = %+v", got)
	}
}

func TestCreateRunOpenFailureIsClassified(t *testing.T) {
	gin.SetMode(gin.TestMode)
	runs := repository.NewMemoryRunRepository()
	openErr := fmt.Errorf("%w: %w", warehouse.ErrTableStore, config.ErrMissingServiceAccountKey)
	run := func(ctx context.Context, cfg config.Config, runID string) (models.RunReport, error) {
		return models.RunReport{}, openErr
	}

	h := NewRunHandler(context.Background(), baseConfig(), run, runs, logger.Discard())
	router := gin.New()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /run = %d", w.Code)
	}
	var created struct {
		RunID string `json:"run_id"`
	}
	decode(t, w, &created)
	h.Wait()

	got, err := runs.Get(context.Background(), created.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RunError || got.ErrorClass != pipeline.ClassTableStore || got.Error == "" {
		t.Errorf("run = %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("finished_at not set")
	}
}

func TestCreateRunBadInput(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, body := range []string{`{"country":`, `{"min_date":"not a date"}`} {
		if w := ts.do(http.MethodPost, "/run", body); w.Code != http.StatusBadRequest {
			t.Errorf("POST /run %s = %d, want 400", body, w.Code)
		}
	}
}

func TestGetRunErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	if w := ts.do(http.MethodGet, "/run/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d", w.Code)
	}
	if w := ts.do(http.MethodGet, "/run/0b7f5a0e-1d6c-4c43-9a4b-1f2e3d4c5b6a", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d", w.Code)
	}
	w := ts.do(http.MethodGet, "/runs", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty runs = %d %s", w.Code, w.Body.String())
	}
}
