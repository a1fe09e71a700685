// Package pipeline runs the two stages of an ingest: web-to-store (fetch,
// diff, snapshot) followed by store-to-table (read delta, clean, load).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/cleaner"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/fetcher"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/loader"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/objectstore"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/snapshot"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/warehouse"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

// Source returns one page of articles for a country.
type Source interface {
	Fetch(ctx context.Context, country string) ([]models.Article, error)
}

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, report models.RunReport) error
}

var _ Source = (*fetcher.Client)(nil)

type Pipeline struct {
	cfg      config.Config
	source   Source
	store    objectstore.ObjectStore
	wh       warehouse.Warehouse
	differ   *snapshot.Differ
	cleaner  *cleaner.Cleaner
	loader   *loader.Loader
	notifier Notifier
	logger   *logger.ColorfulLogger
}

func New(cfg config.Config, source Source, store objectstore.ObjectStore, wh warehouse.Warehouse, log *logger.ColorfulLogger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		source:  source,
		store:   store,
		wh:      wh,
		differ:  snapshot.NewDiffer(store, log),
		cleaner: cleaner.NewFromConfig(cfg, log),
		loader:  loader.New(wh, log),
		logger:  log,
	}
}

// Open connects every backend named in cfg.
func Open(ctx context.Context, cfg config.Config, log *logger.ColorfulLogger) (*Pipeline, error) {
	client, err := fetcher.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	store, err := objectstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	wh, err := warehouse.Open(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return New(cfg, client, store, wh, log), nil
}

func (p *Pipeline) SetNotifier(n Notifier) {
	p.notifier = n
}

func (p *Pipeline) Config() config.Config {
	return p.cfg
}

func (p *Pipeline) Destination() models.Destination {
	return models.Destination{Project: p.cfg.Project, Dataset: p.cfg.Dataset, Table: p.cfg.Table}
}

func (p *Pipeline) Close() error {
	return errors.Join(p.store.Close(), p.wh.Close())
}

type WebToStoreResult struct {
	Fetched  int
	Delta    []models.Article
	FirstRun bool
}

// WebToStore fetches the latest page, diffs it against the stored snapshot
// and writes both the new snapshot and the delta.
func (p *Pipeline) WebToStore(ctx context.Context) (WebToStoreResult, error) {
	var res WebToStoreResult

	p.logger.Info("[web-to-store] fetching %s headlines", p.cfg.Country)
	articles, err := p.source.Fetch(ctx, p.cfg.Country)
	if err != nil {
		return res, fmt.Errorf("web-to-store: %w", err)
	}
	res.Fetched = len(articles)

	diff, err := p.differ.Run(ctx, p.cfg.Bucket, articles)
	if err != nil {
		return res, fmt.Errorf("web-to-store: %w", err)
	}
	res.Delta = diff.Delta
	res.FirstRun = diff.FirstRun
	return res, nil
}

type StoreToTableResult struct {
	Read    int
	Cleaned int
	Loaded  int
}

// StoreToTable loads the delta written by the last WebToStore.
func (p *Pipeline) StoreToTable(ctx context.Context) (StoreToTableResult, error) {
	var res StoreToTableResult

	delta, err := snapshot.LoadDelta(ctx, p.store, p.cfg.Bucket)
	if err != nil {
		return res, fmt.Errorf("store-to-table: %w", err)
	}
	res.Read = len(delta)

	rows := p.cleaner.Clean(delta)
	res.Cleaned = len(rows)
	p.logger.Info("[store-to-table] %d rows read, %d kept after cleaning", res.Read, res.Cleaned)

	if err := p.loader.Load(ctx, p.Destination(), rows); err != nil {
		return res, fmt.Errorf("store-to-table: %w", err)
	}
	res.Loaded = len(rows)
	return res, nil
}

// Run executes both stages in order and reports the outcome. The second
// stage only starts after the first one has completed.
func (p *Pipeline) Run(ctx context.Context, runID string) (models.RunReport, error) {
	report := models.RunReport{
		RunID:     runID,
		Status:    models.RunRunning,
		StartedAt: time.Now().UTC(),
	}

	err := p.run(ctx, &report)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Status = models.RunError
		report.Error = err.Error()
		report.ErrorClass = Classify(err)
		p.logger.Error("run %s failed (%s): %v", runID, report.ErrorClass, err)
	} else {
		report.Status = models.RunDone
		p.logger.Info("run %s done: %d fetched, %d new, %d loaded in %s",
			runID, report.Fetched, report.New, report.Loaded, report.FinishedAt.Sub(report.StartedAt))
	}

	p.notify(ctx, report)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, report *models.RunReport) error {
	a, err := p.WebToStore(ctx)
	report.Fetched = a.Fetched
	report.New = len(a.Delta)
	report.FirstRun = a.FirstRun
	if err != nil {
		return err
	}

	b, err := p.StoreToTable(ctx)
	report.Cleaned = b.Cleaned
	report.Loaded = b.Loaded
	return err
}

func (p *Pipeline) notify(ctx context.Context, report models.RunReport) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, report); err != nil {
		p.logger.Warn("failed to publish report for run %s: %v", report.RunID, err)
	}
}

// Error classes reported in models.RunReport.
const (
	ClassSourceUnavailable = "source_unavailable"
	ClassStorageAccess     = "storage_access"
	ClassTableStore        = "table_store"
	ClassCanceled          = "canceled"
	ClassUnknown           = "unknown"
)

// Classify names the failure category of err, or "" for nil.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fetcher.ErrSourceUnavailable):
		return ClassSourceUnavailable
	case errors.Is(err, objectstore.ErrStorageAccess):
		return ClassStorageAccess
	case errors.Is(err, warehouse.ErrTableStore):
		return ClassTableStore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassUnknown
	}
}
