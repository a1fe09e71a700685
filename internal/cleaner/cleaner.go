// Package cleaner turns raw snapshot articles into rows for the destination table.
package cleaner

import (
	"time"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/utils"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

type Cleaner struct {
	loc     *time.Location
	minDate time.Time
	logger  *logger.ColorfulLogger
}

func New(loc *time.Location, minDate time.Time, log *logger.ColorfulLogger) *Cleaner {
	if loc == nil {
		loc = time.UTC
	}
	return &Cleaner{loc: loc, minDate: minDate, logger: log}
}

func NewFromConfig(cfg config.Config, log *logger.ColorfulLogger) *Cleaner {
	return New(cfg.Timezone, cfg.MinDate, log)
}

// Clean converts published_at to the cleaner's location and keeps rows
// published at or after the cutoff. Unparseable rows are dropped.
func (c *Cleaner) Clean(articles []models.Article) []models.Row {
	if len(articles) == 0 {
		return []models.Row{}
	}

	rows := make([]models.Row, 0, len(articles))
	var unparseable, tooOld int
	for _, a := range articles {
		published, err := utils.ParseTimestamp(a.PublishedAt)
		if err != nil {
			unparseable++
			c.logger.Debug("[store-to-table] dropping %s: %v", a.URL, err)
			continue
		}
		if published.Before(c.minDate) {
			tooOld++
			continue
		}
		rows = append(rows, models.Row{
			Author:      a.Author,
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			Source:      a.Source,
			Image:       a.Image,
			Category:    a.Category,
			PublishedAt: published.In(c.loc),
		})
	}

	if unparseable > 0 || tooOld > 0 {
		c.logger.Debug("[store-to-table] dropped %d unparseable and %d rows before %s",
			unparseable, tooOld, c.minDate.In(c.loc).Format(time.RFC3339))
	}
	return rows
}
