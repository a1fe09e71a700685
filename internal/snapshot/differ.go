package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/objectstore"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

// Diff returns the articles of current whose url does not appear in prev,
// in their original order.
func Diff(prev, current []models.Article) []models.Article {
	seen := make(map[string]struct{}, len(prev))
	for _, a := range prev {
		seen[a.URL] = struct{}{}
	}
	delta := make([]models.Article, 0, len(current))
	for _, a := range current {
		if _, ok := seen[a.URL]; !ok {
			delta = append(delta, a)
		}
	}
	return delta
}

type Result struct {
	Delta    []models.Article
	Previous int
	FirstRun bool
}

type Differ struct {
	store  objectstore.ObjectStore
	logger *logger.ColorfulLogger
}

func NewDiffer(store objectstore.ObjectStore, log *logger.ColorfulLogger) *Differ {
	return &Differ{store: store, logger: log}
}

// Run compares current against the bucket's latest snapshot, then replaces
// the snapshot with current and the delta object with the new articles.
func (d *Differ) Run(ctx context.Context, bucket string, current []models.Article) (Result, error) {
	var res Result

	prev, found, err := d.previous(ctx, bucket)
	if err != nil {
		return res, err
	}
	if found {
		res.Previous = len(prev)
		res.Delta = Diff(prev, current)
	} else {
		res.FirstRun = true
		res.Delta = Diff(nil, current)
	}

	latest, err := Encode(current)
	if err != nil {
		return res, fmt.Errorf("encode latest batch: %w", err)
	}
	delta, err := Encode(res.Delta)
	if err != nil {
		return res, fmt.Errorf("encode new data: %w", err)
	}

	if err := d.store.Put(ctx, bucket, LatestBatchPath, latest, ContentType); err != nil {
		return res, err
	}
	if err := d.store.Put(ctx, bucket, NewDataPath, delta, ContentType); err != nil {
		return res, err
	}

	d.logger.Info("[web-to-store] %d fetched, %d new, stored in %s", len(current), len(res.Delta), bucket)
	return res, nil
}

// previous loads the prior snapshot. found is false when there is nothing
// usable to compare against.
func (d *Differ) previous(ctx context.Context, bucket string) ([]models.Article, bool, error) {
	exists, err := d.store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		d.logger.Info("[web-to-store] bucket %s not found, creating it", bucket)
		if err := d.store.CreateBucket(ctx, bucket); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	exists, err = d.store.ObjectExists(ctx, bucket, LatestBatchPath)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		d.logger.Info("[web-to-store] no previous batch in %s", bucket)
		return nil, false, nil
	}

	data, err := d.store.Get(ctx, bucket, LatestBatchPath)
	if err != nil {
		return nil, false, err
	}
	prev, err := Decode(data)
	if err != nil {
		d.logger.Warn("[web-to-store] previous batch unreadable, treating every article as new: %v", err)
		return nil, false, nil
	}
	if len(prev) == 0 {
		d.logger.Warn("[web-to-store] previous batch is empty, treating every article as new")
		return nil, false, nil
	}
	return prev, true, nil
}

// LoadDelta reads the articles the last web-to-store run marked as new.
func LoadDelta(ctx context.Context, store objectstore.ObjectStore, bucket string) ([]models.Article, error) {
	data, err := store.Get(ctx, bucket, NewDataPath)
	if err != nil {
		return nil, err
	}
	articles, err := Decode(data)
	if err != nil {
		if errors.Is(err, ErrMalformedSnapshot) {
			return nil, fmt.Errorf("%w: %s/%s: %w", objectstore.ErrStorageAccess, bucket, NewDataPath, err)
		}
		return nil, err
	}
	return articles, nil
}
