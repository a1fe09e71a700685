// Package snapshot keeps the latest fetched batch in object storage and works
// out which articles are new since the previous run.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
)

const (
	LatestBatchPath = "data/latest_batch.csv"
	NewDataPath     = "data/new_data.csv"
	ContentType     = "text/csv"
)

var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Columns is the header written to every snapshot file.
var Columns = []string{
	"author", "title", "description", "url", "source",
	"image", "category", "language", "country", "published_at",
}

func record(a models.Article) []string {
	return []string{
		a.Author, a.Title, a.Description, a.URL, a.Source,
		a.Image, a.Category, a.Language, a.Country, a.PublishedAt,
	}
}

// Encode renders articles as CSV with a header row, even when there are none.
func Encode(articles []models.Article) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, a := range articles {
		if err := w.Write(record(a)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot by header name. Unknown columns are ignored and
// missing ones stay empty. Empty input yields no rows.
func Decode(data []byte) ([]models.Article, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedSnapshot, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, ok := index["url"]; !ok {
		return nil, fmt.Errorf("%w: no url column", ErrMalformedSnapshot)
	}

	col := func(rec []string, name string) string {
		if i, ok := index[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var articles []models.Article
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
		}
		articles = append(articles, models.Article{
			Author:      col(rec, "author"),
			Title:       col(rec, "title"),
			Description: col(rec, "description"),
			URL:         col(rec, "url"),
			Source:      col(rec, "source"),
			Image:       col(rec, "image"),
			Category:    col(rec, "category"),
			Language:    col(rec, "language"),
			Country:     col(rec, "country"),
			PublishedAt: col(rec, "published_at"),
		})
	}
	return articles, nil
}
