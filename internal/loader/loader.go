// Package loader appends cleaned rows to the destination table, creating the
// dataset and table on first use.
package loader

import (
	"context"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/warehouse"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

type Loader struct {
	wh     warehouse.Warehouse
	logger *logger.ColorfulLogger
}

func New(wh warehouse.Warehouse, log *logger.ColorfulLogger) *Loader {
	return &Loader{wh: wh, logger: log}
}

// Load appends rows to dest. With no rows the warehouse is not touched.
func (l *Loader) Load(ctx context.Context, dest models.Destination, rows []models.Row) error {
	if len(rows) == 0 {
		l.logger.Info("No new rows to be ingested.")
		return nil
	}

	ok, err := l.wh.DatasetExists(ctx, dest)
	if err != nil {
		return err
	}
	if !ok {
		l.logger.Info("[store-to-table] creating dataset %s", dest.Dataset)
		if err := l.wh.CreateDataset(ctx, dest); err != nil {
			return err
		}
	}

	ok, err = l.wh.TableExists(ctx, dest)
	if err != nil {
		return err
	}
	if !ok {
		l.logger.Info("[store-to-table] creating table %s", dest)
		if err := l.wh.CreateTable(ctx, dest, models.NewsSchema); err != nil {
			return err
		}
	}

	if err := l.wh.Append(ctx, dest, rows); err != nil {
		return err
	}
	l.logger.Info("[store-to-table] appended %d rows to %s", len(rows), dest)
	return nil
}
