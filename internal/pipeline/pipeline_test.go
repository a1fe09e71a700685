package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/fetcher"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/objectstore"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/snapshot"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/warehouse"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

type newsAPI struct {
	mu       sync.Mutex
	articles []map[string]interface{}
	status   int
}

func (n *newsAPI) set(urls ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.articles = []map[string]interface{}{}
	for i, u := range urls {
		n.articles = append(n.articles, map[string]interface{}{
			"author":       nil,
			"title":        "Story " + u,
			"description":  "",
			"url":          u,
			"source":       "inquirer",
			"image":        nil,
			"category":     "general",
			"language":     "en",
			"country":      "ph",
			"published_at": fmt.Sprintf("2023-06-0%dT01:00:00+00:00", i+2),
		})
	}
}

func (n *newsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != 0 {
		w.WriteHeader(n.status)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"data": n.articles})
}

type recordingNotifier struct {
	reports []models.RunReport
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, report models.RunReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

type fixture struct {
	api   *newsAPI
	store *objectstore.FileStore
	wh    *warehouse.SQLite
	p     *Pipeline
	note  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := &newsAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.Config{
		Country:     "ph",
		MinDate:     time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("", 8*3600)),
		Timezone:    time.FixedZone("PHT", 8*3600),
		NewsAPIURL:  srv.URL,
		NewsAPIKey:  "test-key",
		Language:    "en",
		Sort:        "published_desc",
		Limit:       100,
		HTTPTimeout: 5 * time.Second,
		Bucket:      "ph-news",
		Project:     "local",
		Dataset:     "ph_news",
		Table:       "news_data",
	}

	client, err := fetcher.NewClient(cfg, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	store, err := objectstore.NewFileStore(filepath.Join(dir, "buckets"))
	if err != nil {
		t.Fatal(err)
	}
	wh, err := warehouse.NewSQLite(filepath.Join(dir, "warehouse"))
	if err != nil {
		t.Fatal(err)
	}

	p := New(cfg, client, store, wh, logger.Discard())
	note := &recordingNotifier{}
	p.SetNotifier(note)
	t.Cleanup(func() { p.Close() })
	return &fixture{api: api, store: store, wh: wh, p: p, note: note}
}

func TestRunFirstThenIncremental(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.api.set("https://a", "https://b")
	report, err := f.p.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if report.Status != models.RunDone || !report.FirstRun || report.New != 2 || report.Loaded != 2 {
		t.Errorf("first report = %+v", report)
	}

	f.api.set("https://a", "https://b", "https://c")
	report, err = f.p.Run(ctx, "run-2")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.FirstRun || report.Fetched != 3 || report.New != 1 || report.Loaded != 1 {
		t.Errorf("second report = %+v", report)
	}

	f.api.set()
	report, err = f.p.Run(ctx, "run-3")
	if err != nil {
		t.Fatalf("empty run: %v", err)
	}
	if report.New != 0 || report.Loaded != 0 || report.Status != models.RunDone {
		t.Errorf("empty report = %+v", report)
	}

	if len(f.note.reports) != 3 {
		t.Errorf("notified %d times, want 3", len(f.note.reports))
	}

	data, err := f.store.Get(ctx, "ph-news", snapshot.LatestBatchPath)
	if err != nil {
		t.Fatal(err)
	}
	latest, err := snapshot.Decode(data)
	if err != nil || len(latest) != 0 {
		t.Errorf("latest batch after empty fetch = %v, %v", latest, err)
	}
}

func TestRunSourceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.api.status = http.StatusServiceUnavailable

	report, err := f.p.Run(context.Background(), "run-x")
	if !errors.Is(err, fetcher.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if report.Status != models.RunError || report.ErrorClass != ClassSourceUnavailable {
		t.Errorf("report = %+v", report)
	}
	if ok, _ := f.store.ObjectExists(context.Background(), "ph-news", snapshot.LatestBatchPath); ok {
		t.Error("snapshot written although fetch failed")
	}
	if len(f.note.reports) != 1 {
		t.Errorf("failed run should still be reported")
	}
}

func TestStoreToTableWithoutDelta(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.StoreToTable(context.Background())
	if !errors.Is(err, objectstore.ErrStorageAccess) {
		t.Errorf("expected ErrStorageAccess, got %v", err)
	}
}

func TestNotifierFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.note.err = errors.New("broker down")
	f.api.set("https://a")

	if _, err := f.p.Run(context.Background(), "run-n"); err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("web-to-store: %w", fetcher.ErrSourceUnavailable), ClassSourceUnavailable},
		{fmt.Errorf("web-to-store: %w", objectstore.ErrStorageAccess), ClassStorageAccess},
		{fmt.Errorf("store-to-table: %w", warehouse.ErrTableStore), ClassTableStore},
		{context.Canceled, ClassCanceled},
		{errors.New("boom"), ClassUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
